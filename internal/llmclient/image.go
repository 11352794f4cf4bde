package llmclient

import "encoding/base64"

func encodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
