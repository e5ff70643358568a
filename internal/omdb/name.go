package omdb

import (
	"path"
	"regexp"
	"strings"
)

var (
	// хвост релиза: метки рипа, качество, кодеки, год; всё после них отрезается
	tailRe = regexp.MustCompile(`(?i)( cd[0-9]|\b(?:dvdrip|xvid|ac3|dts|custom|dc|divx|divx5|dsr|dsrip|dutch|dvd|dvdscr|dvdscreener|screener|dvdivx|cam|fragment|fs|hdtv|hdrip|hdtvrip|internal|limited|multisubs|ntsc|ogg|ogm|pal|pdtv|proper|repack|rerip|retail|r3|r5|bd5|svcd|s0|swedish|german|read nfo|nfofix|unrated|ws|telesync|ts|telecine|tc|brrip|bdrip|480p|480i|576p|576i|720p|720i|1080p|1080i|hrhd|hrhdtv|hddvd|bluray|x264|h264|xvidvd|xxx|www www)\b|-|[\{\(\[]?[0-9]{4}).*`)
	noseRe = regexp.MustCompile(`\[.*\]`)
)

// ReadableName превращает имя файла релиза в строку поиска:
// "/Movies/Heat.1995.1080p.BluRay.x264.mkv" -> "heat".
func ReadableName(filePath string) string {
	name := path.Base(strings.TrimRight(filePath, "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, ".", " ")
	name = strings.ToLower(name)

	if loc := tailRe.FindStringIndex(name); loc != nil {
		name = name[:loc[0]]
		name = noseRe.ReplaceAllString(name, "")
	}
	return strings.TrimSpace(name)
}
