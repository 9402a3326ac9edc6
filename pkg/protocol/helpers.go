package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptyFrame is returned when a frame carries no image bytes.
var ErrEmptyFrame = errors.New("protocol: empty frame")

// NewFrameMessage creates a frame message from encoded image data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewStateMessage wraps a session snapshot.
func NewStateMessage(snapshot interface{}) (*Message, error) {
	return NewMessage(TypeState, snapshot)
}

// NewNoticeMessage creates a user-visible notice
func NewNoticeMessage(level, message string) (*Message, error) {
	return NewMessage(TypeNotice, NoticeData{Level: level, Message: message})
}

// NewErrorMessage creates an error reply for a rejected client message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetNoticeData extracts notice data from a message
func (m *Message) GetNoticeData() (*NoticeData, error) {
	var data NoticeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode returns the image bytes and their MIME type. Both bare base64 and
// data URLs ("data:image/jpeg;base64,...") are accepted, as browsers send
// canvas.toDataURL output directly. Without a data URL the type comes from
// Format, falling back to content sniffing.
func (f *FrameData) Decode() ([]byte, string, error) {
	payload := strings.TrimSpace(f.Data)
	mime := ""

	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("data URL is not base64 encoded")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFrame
	}

	if mime == "" && f.Format != "" {
		mime = "image/" + f.Format
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
