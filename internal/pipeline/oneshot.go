package pipeline

import (
	"fmt"
	"os"
)

// TextFromInput turns a CLI input into order text. For "text" and "html"
// the value may be a file path or the content itself.
func TextFromInput(inputType string, input string) (string, error) {
	switch inputType {
	case "text", "":
		if blob, ok := readIfFile(input); ok {
			return string(blob), nil
		}
		return input, nil
	case "html":
		if blob, ok := readIfFile(input); ok {
			return htmlToText(string(blob)), nil
		}
		return htmlToText(input), nil
	case "eml":
		blob, err := os.ReadFile(input)
		if err != nil {
			return "", err
		}
		content, err := ExtractOrderTextFromEmail(blob)
		if err != nil {
			return "", err
		}
		return content.Text, nil
	case "pdf":
		blob, err := os.ReadFile(input)
		if err != nil {
			return "", err
		}
		return pdfText(blob)
	case "xlsx":
		blob, err := os.ReadFile(input)
		if err != nil {
			return "", err
		}
		return xlsxText(blob)
	default:
		return "", fmt.Errorf("unsupported input type: %s", inputType)
	}
}

func readIfFile(path string) ([]byte, bool) {
	if len(path) > 4096 {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return blob, true
}
