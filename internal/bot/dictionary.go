package bot

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

//go:embed default.xml
var defaultDictionary []byte

// Node: узел документа: имя, атрибуты, дочерние элементы и текст.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	Text     string
}

func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// StructureError: неожиданный элемент в словаре.
type StructureError struct {
	Expected string
	Got      string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("expected %q node but got %q", e.Expected, e.Got)
}

// ParseNode читает XML в дерево Node. Комментарии и инструкции пропускаются.
func ParseNode(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var stack []*Node
	var root *Node
	var text []*strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			} else {
				return nil, errors.New("document has more than one root element")
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	if root == nil {
		return nil, errors.New("empty document")
	}
	return root, nil
}

// Encode пишет нормализованное представление дерева (атрибуты по алфавиту).
func (n *Node) Encode(w io.Writer) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := n.encode(enc); err != nil {
		return err
	}
	return enc.Flush()
}

func (n *Node) encode(enc *xml.Encoder) error {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := xml.StartElement{Name: xml.Name{Local: n.Name}}
	for _, k := range keys {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: k}, Value: n.Attrs[k]})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Dictionary: результат загрузки словаря бота.
type Dictionary struct {
	Rules    []*Rule
	Commands []*Command
	Watchers []*Watcher

	Document []byte
	Sum      string
}

func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't read robot file: %w", err)
	}
	defer f.Close()
	d, err := ParseDictionary(f)
	if err != nil {
		return nil, fmt.Errorf("robot file %s: %w", path, err)
	}
	return d, nil
}

func ParseDictionary(r io.Reader) (*Dictionary, error) {
	root, err := ParseNode(r)
	if err != nil {
		return nil, err
	}
	if root.Name != "wirebot" {
		return nil, &StructureError{Expected: "wirebot", Got: root.Name}
	}

	d := &Dictionary{}
	for _, block := range root.Children {
		switch block.Name {
		case "rules":
			for _, n := range block.Children {
				if n.Name != "rule" {
					return nil, &StructureError{Expected: "rule", Got: n.Name}
				}
				d.Rules = append(d.Rules, loadRule(n))
			}
		case "commands":
			for _, n := range block.Children {
				if n.Name != "command" {
					return nil, &StructureError{Expected: "command", Got: n.Name}
				}
				d.Commands = append(d.Commands, loadCommand(n))
			}
		case "watchers":
			for _, n := range block.Children {
				if n.Name != "watcher" {
					return nil, &StructureError{Expected: "watcher", Got: n.Name}
				}
				d.Watchers = append(d.Watchers, loadWatcher(n))
			}
		}
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, err
	}
	d.Document = buf.Bytes()
	sum := blake3.Sum256(d.Document)
	d.Sum = hex.EncodeToString(sum[:])
	return d, nil
}

func loadActivated(n *Node) bool {
	if v, ok := n.Attr("activated"); ok {
		return v == "true"
	}
	return defaultActivatedVal
}

func loadPermissions(n *Node) string {
	if v, ok := n.Attr("permissions"); ok {
		return v
	}
	return defaultPermissions
}

func loadRule(n *Node) *Rule {
	r := &Rule{
		Activated:   loadActivated(n),
		Permissions: loadPermissions(n),
	}
	for _, c := range n.Children {
		switch c.Name {
		case "input":
			r.Inputs = append(r.Inputs, loadInput(c))
		case "output":
			r.Outputs = append(r.Outputs, loadOutput(c))
		}
	}
	return r
}

func loadCommand(n *Node) *Command {
	c := &Command{
		Activated:   loadActivated(n),
		Name:        defaultCommandName,
		Permissions: loadPermissions(n),
	}
	if v, ok := n.Attr("name"); ok {
		c.Name = v
	}
	for _, ch := range n.Children {
		if ch.Name == "output" {
			c.Outputs = append(c.Outputs, loadOutput(ch))
		}
	}
	return c
}

func loadWatcher(n *Node) *Watcher {
	w := &Watcher{Activated: loadActivated(n)}
	w.Path, _ = n.Attr("path")
	w.Type, _ = n.Attr("type")
	for _, c := range n.Children {
		switch c.Name {
		case "output":
			w.Outputs = append(w.Outputs, loadOutput(c))
		case "service":
			s := &Service{}
			s.Name, _ = c.Attr("name")
			s.Type, _ = c.Attr("type")
			w.Services = append(w.Services, s)
		}
	}
	return w
}

func loadInput(n *Node) Input {
	in := Input{Comparison: Equals, Pattern: n.Text}
	if v, ok := n.Attr("message"); ok {
		in.MessageName = NormalizeMessageName(v)
	}
	if v, ok := n.Attr("comparison"); ok {
		in.Comparison = parseComparison(v)
	}
	if v, ok := n.Attr("sensitive"); ok {
		in.CaseSensitive = v == "true"
	}
	return in
}

func loadOutput(n *Node) Output {
	o := Output{Template: n.Text}
	if v, ok := n.Attr("message"); ok {
		o.MessageName = NormalizeMessageName(v)
	}
	o.Kind = KindOf(o.MessageName)
	o.Board, _ = n.Attr("board")
	if v, ok := n.Attr("time"); ok {
		o.Time = parseTimeRange(v)
	}
	if v, ok := n.Attr("delay"); ok {
		o.Delay, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	if v, ok := n.Attr("repeat"); ok {
		o.Repeat, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	return o
}

// EnsureDictionary кладёт встроенный словарь по умолчанию, если файла нет.
func EnsureDictionary(path string, log *zap.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if log != nil {
		log.Info("dictionary not found, installing default", zap.String("path", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, defaultDictionary, 0644); err != nil {
		return fmt.Errorf("install default dictionary: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("dictionary still missing: %w", err)
	}
	return nil
}
