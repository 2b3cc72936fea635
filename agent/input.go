package agent

import (
	"fmt"
	"strings"
)

// TextSource 标记文本输入的来源
type TextSource string

const (
	TextSourceInput     TextSource = "input"
	TextSourceClipboard TextSource = "clipboard"
)

// ImageSource 标记图片输入的来源
type ImageSource string

const (
	ImageSourceCamera    ImageSource = "camera"
	ImageSourceScreen    ImageSource = "screen"
	ImageSourceClipboard ImageSource = "clipboard"
	ImageSourceUpload    ImageSource = "upload"
)

// TextData 是一段文本输入
type TextData struct {
	Source   TextSource `json:"source"`
	Content  string     `json:"content"`
	FromName string     `json:"from_name,omitempty"`
}

// ImageData 是一张图片输入，Data 为 URL 或 base64 data URI
type ImageData struct {
	Source   ImageSource `json:"source"`
	Data     string      `json:"data"`
	MimeType string      `json:"mime_type"`
}

// FileData 是附带的文件
type FileData struct {
	Name     string `json:"name"`
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// BatchInput 是一个用户回合的全部输入
type BatchInput struct {
	Texts  []TextData  `json:"texts"`
	Images []ImageData `json:"images,omitempty"`
	Files  []FileData  `json:"files,omitempty"`
}

// TextInput builds a single-text input.
func TextInput(text, fromName string) BatchInput {
	return BatchInput{Texts: []TextData{{Source: TextSourceInput, Content: text, FromName: fromName}}}
}

// FromName returns the speaker name of the first text that carries one.
func (in BatchInput) FromName() string {
	for _, t := range in.Texts {
		if t.FromName != "" {
			return t.FromName
		}
	}
	return ""
}

// ToTextPrompt flattens the input into the user message sent to the model.
// Clipboard text is wrapped, and images are listed as placeholders.
func (in BatchInput) ToTextPrompt() string {
	parts := make([]string, 0, len(in.Texts)+1)
	for _, t := range in.Texts {
		switch t.Source {
		case TextSourceClipboard:
			parts = append(parts, fmt.Sprintf("[Clipboard content: %s]", t.Content))
		default:
			parts = append(parts, t.Content)
		}
	}

	if len(in.Images) > 0 {
		lines := []string{"\nImages in this message:"}
		for i, img := range in.Images {
			lines = append(lines, fmt.Sprintf("- Image %d (%s)", i+1, describeImageSource(img.Source)))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n")
}

func describeImageSource(s ImageSource) string {
	switch s {
	case ImageSourceCamera:
		return "captured from camera"
	case ImageSourceScreen:
		return "screenshot"
	case ImageSourceClipboard:
		return "from clipboard"
	default:
		return "uploaded"
	}
}
