// Command voiceclient drives a running server the way the browser does: it uploads an image,
// streams a recorded utterance over the websocket and saves the spoken reply.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type serverMessage struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Text      string `json:"text"`
	Notice    string `json:"notice"`
	Size      int    `json:"size"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	imagePath := flag.String("image", "", "image to describe first; empty reuses the session caption")
	audioPath := flag.String("audio", "", "recorded utterance to stream")
	encoding := flag.String("encoding", "LINEAR16", "encoding of the utterance")
	sampleRate := flag.Int("sample-rate", 16000, "sample rate of the utterance")
	language := flag.String("language", "en-US", "language of the utterance")
	chunkSize := flag.Int("chunk-size", 3200, "bytes per websocket frame")
	outPath := flag.String("out", "reply.mp3", "where to write the spoken reply")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *audioPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	base, err := url.Parse(*server)
	if err != nil {
		logger.Fatal("Invalid server URL", zap.Error(err))
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: 2 * time.Minute}

	// the session cookie is issued on the first API call
	resp, err := client.Get(base.JoinPath("/api/v1/session").String())
	if err != nil {
		logger.Fatal("Failed to start session", zap.Error(err))
	}
	resp.Body.Close()

	if *imagePath != "" {
		caption, err := describe(client, base, *imagePath)
		if err != nil {
			logger.Fatal("Failed to describe image", zap.Error(err))
		}
		fmt.Printf("Generated Description: %s\n", caption)
	}

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		logger.Fatal("Failed to read audio file", zap.Error(err))
	}

	wsURL := *base
	wsURL.Scheme = strings.Replace(base.Scheme, "http", "ws", 1)
	wsURL.Path = "/ws"

	dialer := *websocket.DefaultDialer
	dialer.Jar = jar
	conn, _, err := dialer.Dial(wsURL.String(), nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]interface{}{
		"type":        "listening_start",
		"encoding":    *encoding,
		"sample_rate": *sampleRate,
		"language":    *language,
	}); err != nil {
		logger.Fatal("Failed to start listening", zap.Error(err))
	}

	logger.Info("Streaming utterance",
		zap.String("file", *audioPath),
		zap.String("size", humanize.Bytes(uint64(len(audio)))))

	for start := 0; start < len(audio); start += *chunkSize {
		end := min(start+*chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			logger.Fatal("Failed to send audio chunk", zap.Error(err))
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "listening_end"}); err != nil {
		logger.Fatal("Failed to end listening", zap.Error(err))
	}

	reply, err := receiveReply(conn, logger)
	if err != nil {
		logger.Fatal("Voice query failed", zap.Error(err))
	}
	if reply == nil {
		return
	}

	if err := os.WriteFile(*outPath, reply, 0o644); err != nil {
		logger.Fatal("Failed to write reply", zap.Error(err))
	}
	fmt.Printf("Reply saved to %s (%s)\n", *outPath, humanize.Bytes(uint64(len(reply))))
}

// receiveReply reads server messages until the reply was spoken; nil means nothing was spoken
func receiveReply(conn *websocket.Conn, logger *zap.Logger) ([]byte, error) {
	var audio bytes.Buffer
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.BinaryMessage {
			audio.Write(data)
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Unreadable server message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "listening_started":
			logger.Info("Server is listening")
		case "recognition":
			if msg.State != "TRANSCRIBED" {
				fmt.Println(msg.Notice)
				return nil, nil
			}
			fmt.Printf("You said: %s\n", msg.Text)
		case "speaking_start":
			fmt.Printf("Reply: %s\n", msg.Text)
		case "speaking_end":
			return audio.Bytes(), nil
		case "error":
			return nil, fmt.Errorf("%s: %s", msg.ErrorCode, msg.Message)
		}
	}
}

func describe(client *http.Client, base *url.URL, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return "", err
	}
	part.Write(data)
	writer.Close()

	resp, err := client.Post(base.JoinPath("/api/v1/describe").String(), writer.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("describe failed: %s", raw)
	}

	var result struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result.Caption, nil
}
