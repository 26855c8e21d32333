// Package transport connects the whatsapp service to WhatsApp through
// whatsmeow, the multi-device web protocol client.
package transport

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/georgeshao/clinic-crm/internal/whatsapp"
)

const deviceDB = "device.db"

type Config struct {
	// SessionDir holds the device database. Wiping it forces a new pairing.
	SessionDir string
	LogLevel   string
}

// Whatsmeow implements whatsapp.Transport. The device store is opened on
// Connect and closed on Disconnect so the session directory can be wiped
// in between.
type Whatsmeow struct {
	config Config
	logger waLog.Logger

	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
}

func New(config Config) *Whatsmeow {
	if config.LogLevel == "" {
		config.LogLevel = "WARN"
	}
	return &Whatsmeow{
		config: config,
		logger: waLog.Stdout("whatsmeow", config.LogLevel, false),
	}
}

func (w *Whatsmeow) Connect(ctx context.Context, handler func(whatsapp.Event)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeLocked()

	if err := os.MkdirAll(w.config.SessionDir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	dsn := "file:" + filepath.Join(w.config.SessionDir, deviceDB) + "?_foreign_keys=on&_busy_timeout=5000"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, w.logger.Sub("Database"))
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return fmt.Errorf("failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, w.logger.Sub("Client"))
	// reconnects are decided by the service, not the library
	client.EnableAutoReconnect = false
	client.AddEventHandler(func(evt any) {
		if ev, ok := translate(evt); ok {
			handler(ev)
		}
	})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return fmt.Errorf("failed to open qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			container.Close()
			return fmt.Errorf("failed to connect: %w", err)
		}
		go forwardQR(qrChan, handler)
	} else if err := client.Connect(); err != nil {
		container.Close()
		return fmt.Errorf("failed to connect: %w", err)
	}

	w.container = container
	w.client = client
	return nil
}

func forwardQR(qrChan <-chan whatsmeow.QRChannelItem, handler func(whatsapp.Event)) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			handler(whatsapp.QREvent{Code: item.Code})
		case "timeout":
			// nobody scanned in time; wait for the operator instead of
			// looping through fresh codes
			handler(whatsapp.CloseEvent{Reason: "qr code expired", LoggedOut: true})
		case "success":
		default:
			log.Printf("[whatsapp] Pairing ended: %s", item.Event)
		}
	}
}

func (w *Whatsmeow) Send(ctx context.Context, conversationID, text string) (whatsapp.SentMessage, error) {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return whatsapp.SentMessage{}, whatsapp.ErrNotConnected
	}

	jid, err := watypes.ParseJID(conversationID)
	if err != nil {
		return whatsapp.SentMessage{}, fmt.Errorf("invalid conversation id %q: %w", conversationID, err)
	}

	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return whatsapp.SentMessage{}, err
	}
	return whatsapp.SentMessage{MessageID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (w *Whatsmeow) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *Whatsmeow) Logout(ctx context.Context) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	if client == nil {
		return whatsapp.ErrNotConnected
	}
	return client.Logout(ctx)
}

func (w *Whatsmeow) closeLocked() {
	if w.client != nil {
		w.client.Disconnect()
		w.client = nil
	}
	if w.container != nil {
		if err := w.container.Close(); err != nil {
			log.Printf("[whatsapp] Failed to close device store: %v", err)
		}
		w.container = nil
	}
}
