package worker

import (
	"os"
	"regexp"
	"strings"
)

// sendFileRe matches `[send_file: <path>]` markers in worker output.
var sendFileRe = regexp.MustCompile(`\[send_file:\s*([^\]]+)\]`)

// ExtractSendFiles scans text for send-file markers (spec §6), strips them,
// and returns the cleaned text plus the subset of referenced paths that
// exist on disk. Non-existent paths are silently dropped.
func ExtractSendFiles(text string) (cleaned string, files []string) {
	matches := sendFileRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	for _, m := range sendFileRe.FindAllStringSubmatch(text, -1) {
		path := strings.TrimSpace(m[1])
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	cleaned = sendFileRe.ReplaceAllString(text, "")
	return cleaned, files
}
