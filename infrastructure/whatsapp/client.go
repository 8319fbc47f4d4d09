package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	conversation "github.com/AzielCF/az-post/conversation/domain"
	"github.com/AzielCF/az-post/pkg/utils"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const Channel = "whatsapp"

var ErrNotConnected = errors.New("whatsapp client is not connected")

// ImageSaver persists a downloaded image and returns its public URL.
type ImageSaver interface {
	Save(data []byte, tenantID string) (string, error)
}

// DispatchFunc receives normalized inbound messages. It must not block.
type DispatchFunc func(ev conversation.InboundEvent) bool

type Config struct {
	StoreURI string
	LogLevel string
}

// Client is a single-device WhatsApp connection used both to receive contributor
// messages and to send replies.
type Client struct {
	cfg       Config
	images    ImageSaver
	dispatch  DispatchFunc
	mu        sync.RWMutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	handlerID uint32
}

func NewClient(cfg Config, images ImageSaver, dispatch DispatchFunc) *Client {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR"
	}
	return &Client{cfg: cfg, images: images, dispatch: dispatch}
}

func openStore(ctx context.Context, uri string, log waLog.Logger) (*sqlstore.Container, error) {
	if strings.HasPrefix(uri, "postgres:") || strings.HasPrefix(uri, "postgresql:") {
		return sqlstore.New(ctx, "postgres", uri, log)
	}
	return sqlstore.New(ctx, "sqlite3", uri, log)
}

// Start opens the device store and connects. When the device was never paired, QR codes
// are written to the log until the pairing succeeds or ctx ends.
func (c *Client) Start(ctx context.Context) error {
	container, err := openStore(ctx, c.cfg.StoreURI, waLog.Stdout("Database", c.cfg.LogLevel, true))
	if err != nil {
		return fmt.Errorf("open whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load whatsapp device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	cli := whatsmeow.NewClient(device, waLog.Stdout("Client", c.cfg.LogLevel, true))
	cli.EnableAutoReconnect = true
	cli.AutoTrustIdentity = true
	handlerID := cli.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.client = cli
	c.container = container
	c.handlerID = handlerID
	c.mu.Unlock()

	if cli.Store.ID == nil {
		qr, err := cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		go func() {
			for item := range qr {
				switch item.Event {
				case "code":
					logrus.Infof("[WHATSAPP] scan this code to pair the device: %s", item.Code)
				case "success":
					logrus.Info("[WHATSAPP] device paired")
				default:
					logrus.Warnf("[WHATSAPP] pairing event: %s", item.Event)
				}
			}
		}()
	}

	if err := cli.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	logrus.Info("[WHATSAPP] connected")
	return nil
}

func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return
	}
	c.client.RemoveEventHandler(c.handlerID)
	c.client.Disconnect()
	if c.container != nil {
		if err := c.container.Close(); err != nil {
			logrus.WithError(err).Warn("[WHATSAPP] closing device store")
		}
	}
	c.client = nil
	logrus.Info("[WHATSAPP] disconnected")
}

func (c *Client) current() *whatsmeow.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Client) Connected() bool {
	cli := c.current()
	return cli != nil && cli.IsConnected() && cli.IsLoggedIn()
}

// SendText delivers text to a JID or to a phone number on the default user server.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	cli := c.current()
	if cli == nil || !cli.IsConnected() {
		return ErrNotConnected
	}
	jid, err := ParseRecipient(to)
	if err != nil {
		return err
	}
	_, err = cli.SendMessage(ctx, jid, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String(text)},
	})
	if err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", jid, err)
	}
	return nil
}

// ParseRecipient accepts "15551234567@s.whatsapp.net", "whatsapp:+1 555 123 4567" or "+15551234567".
func ParseRecipient(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid JID %q: %w", to, err)
		}
		return jid, nil
	}
	phone := strings.TrimPrefix(utils.NormalizeContact(to), "+")
	if phone == "" || strings.ContainsFunc(phone, func(r rune) bool { return r < '0' || r > '9' }) {
		return types.JID{}, fmt.Errorf("invalid recipient %q", to)
	}
	return types.NewJID(phone, types.DefaultUserServer), nil
}

func (c *Client) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Message:
		c.handleMessage(evt)
	case *events.Connected:
		logrus.Debug("[WHATSAPP] socket connected")
	case *events.LoggedOut:
		logrus.Warnf("[WHATSAPP] logged out remotely (reason %v); pair the device again", evt.Reason)
	case *events.StreamReplaced:
		logrus.Warn("[WHATSAPP] session opened elsewhere, stream replaced")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	if !Accept(evt.Info) {
		return
	}
	text, image := Extract(evt.Message)
	if text == "" && image == nil {
		return
	}
	convID := ConversationID(evt.Info)

	ev := conversation.InboundEvent{ConversationID: convID, Text: text, Channel: Channel}
	if image != nil {
		url, err := c.downloadImage(image)
		if err != nil {
			logrus.WithError(err).Errorf("[WHATSAPP] image from %s could not be saved", convID)
		} else {
			ev.MediaURL = url
		}
	}
	logrus.Debugf("[WHATSAPP] inbound from %s (media=%t)", convID, ev.MediaURL != "")
	if c.dispatch != nil && !c.dispatch(ev) {
		logrus.Warnf("[WHATSAPP] message from %s dropped, worker queue full", convID)
	}
}

func (c *Client) downloadImage(img *waE2E.ImageMessage) (string, error) {
	cli := c.current()
	if cli == nil {
		return "", ErrNotConnected
	}
	if c.images == nil {
		return "", errors.New("no image store configured")
	}
	data, err := cli.Download(context.Background(), img)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	return c.images.Save(data, "wa")
}
