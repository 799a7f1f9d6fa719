package util

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sniffLen 是 http.DetectContentType 读取的最大字节数
const sniffLen = 512

// ValidateMimeType 按文件内容嗅探 MIME 类型，并与允许列表（前缀或完整类型）比对。
// 不在列表内时返回包装了 ErrInvalidPayload 的错误。
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	if n == 0 {
		return mimeType, fmt.Errorf("%w: empty file", ErrInvalidPayload)
	}

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}
	return mimeType, fmt.Errorf("%w: file type %s is not allowed", ErrInvalidPayload, mimeType)
}
