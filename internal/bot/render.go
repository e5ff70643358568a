package bot

import (
	"path"
	"regexp"
	"strings"
)

const (
	PlaceholderBotNick     = "@BOT_NICK"
	PlaceholderInputNick   = "@INPUT_NICK"
	PlaceholderInputText   = "@INPUT_TEXT"
	PlaceholderWatcherPath = "@WATCHER_PATH"
	PlaceholderWatcherFile = "@WATCHER_FILE"
)

var (
	reBotNick     = placeholder(PlaceholderBotNick)
	reInputNick   = placeholder(PlaceholderInputNick)
	reInputText   = placeholder(PlaceholderInputText)
	reWatcherPath = placeholder(PlaceholderWatcherPath)
	reWatcherFile = placeholder(PlaceholderWatcherFile)
)

func placeholder(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token))
}

func replace(s string, re *regexp.Regexp, value string) string {
	if !re.MatchString(s) {
		return s
	}
	return re.ReplaceAllLiteralString(s, value)
}

// RenderTemplate подставляет ник бота, ник пользователя и текст input: именно
// в таком порядке.
func RenderTemplate(o Output, botNick string, u User) string {
	s := o.Template
	s = replace(s, reBotNick, botNick)
	s = replace(s, reInputNick, u.Nick)
	if o.hasInputText {
		s = replace(s, reInputText, o.InputText)
	}
	return s
}

// RenderWatcherTemplate: вариант для ответов вотчера: путь вотчера и имя файла.
func RenderWatcherTemplate(o Output, botNick, watcherPath, filePath string) string {
	s := o.Template
	s = replace(s, reWatcherPath, watcherPath)
	s = replace(s, reWatcherFile, baseName(filePath))
	s = replace(s, reBotNick, botNick)
	return s
}

func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
