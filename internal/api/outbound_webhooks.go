package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
)

// OutboundWebhook представляет исходящий webhook
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required,url"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required,min=1"` // типы событий или "*"
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // секунды
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookEvent тело запроса к webhook'у
type OutboundWebhookEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	ServerID  string          `json:"server_id"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// OutboundWebhookManager рассылает события шины подписанным webhook'ам
type OutboundWebhookManager struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*OutboundWebhook
	nextID     uint64
	httpClient *http.Client
	serverID   string
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
	inflight   sync.WaitGroup
}

// NewOutboundWebhookManager создает новый менеджер исходящих webhook'ов
func NewOutboundWebhookManager(serverID string, logger *logging.Logger) *OutboundWebhookManager {
	if logger == nil {
		logger = logging.GetAPILogger()
	}
	return &OutboundWebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		nextID:     1,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serverID:   serverID,
		logger:     logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * time.Second
		},
	}
}

// Attach подписывает менеджер на все события шины
func (owm *OutboundWebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		owm.Dispatch(ev)
	})
}

// AddWebhook добавляет новый webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true
	webhook.LastUsed = nil
	webhook.FailureCount = 0

	if webhook.Timeout <= 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount < 0 {
		webhook.RetryCount = 0
	}

	owm.webhooks[webhook.ID] = &webhook
	copied := webhook
	return &copied
}

// GetWebhooks возвращает копии всех webhook'ов, упорядоченные по ID
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// Dispatch отправляет событие всем подписанным webhook'ам в фоне
func (owm *OutboundWebhookManager) Dispatch(ev *eventbus.Envelope) {
	event := OutboundWebhookEvent{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Timestamp: ev.Timestamp.Unix(),
		ServerID:  owm.serverID,
		Source:    ev.Source,
		Data:      json.RawMessage(ev.Payload),
	}
	if len(event.Data) == 0 {
		event.Data = json.RawMessage("null")
	}

	owm.mu.RLock()
	targets := make([]OutboundWebhook, 0)
	for _, webhook := range owm.webhooks {
		if webhook.Active && isSubscribedToEvent(webhook, event.EventType) {
			targets = append(targets, *webhook)
		}
	}
	owm.mu.RUnlock()

	for _, webhook := range targets {
		owm.inflight.Add(1)
		go func(webhook OutboundWebhook) {
			defer owm.inflight.Done()
			owm.deliver(webhook, event)
		}(webhook)
	}
}

// Wait дожидается завершения текущих отправок
func (owm *OutboundWebhookManager) Wait() {
	owm.inflight.Wait()
}

func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribed := range webhook.Events {
		if subscribed == eventType || subscribed == "*" {
			return true
		}
	}
	return false
}

// deliver отправляет событие одному webhook'у с повторами
func (owm *OutboundWebhookManager) deliver(webhook OutboundWebhook, event OutboundWebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		owm.logger.Error("Ошибка маршалинга события для webhook %s: %v", webhook.Name, err)
		return
	}

	var lastErr error
	success := false
	for attempt := 0; attempt <= webhook.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(owm.backoff(attempt - 1))
		}
		if lastErr = owm.post(webhook, event, body); lastErr == nil {
			success = true
			break
		}
		owm.logger.Warn("Попытка %d/%d для webhook %s: %v", attempt+1, webhook.RetryCount+1, webhook.Name, lastErr)
	}

	if success {
		owm.logger.Debug("Событие %s отправлено в webhook %s", event.EventType, webhook.Name)
	} else {
		owm.logger.Error("Webhook %s не принял событие %s: %v", webhook.Name, event.EventID, lastErr)
	}

	owm.mu.Lock()
	if stored, ok := owm.webhooks[webhook.ID]; ok {
		now := time.Now()
		stored.LastUsed = &now
		if !success {
			stored.FailureCount++
		}
	}
	owm.mu.Unlock()
}

func (owm *OutboundWebhookManager) post(webhook OutboundWebhook, event OutboundWebhookEvent, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(webhook.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voxmesh/1.0")
	req.Header.Set("X-Event-Type", event.EventType)
	req.Header.Set("X-Server-ID", event.ServerID)
	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", GenerateSignature(body, webhook.Secret))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("статус %d", resp.StatusCode)
	}
	return nil
}

// GenerateSignature HMAC-SHA256 тела запроса в формате "sha256=<hex>"
func GenerateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
