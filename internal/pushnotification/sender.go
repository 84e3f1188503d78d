package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskcrew/internal/config"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type sendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Sender struct {
	pushEnv *config.PushEnv
	repo    Repository
	send    sendFunc
	now     func() time.Time
}

func NewSender(pushEnv *config.PushEnv, repo Repository) *Sender {
	return &Sender{
		pushEnv: pushEnv,
		repo:    repo,
		send:    webpush.SendNotification,
		now:     time.Now,
	}
}

func (s *Sender) PublicKey() string {
	return s.pushEnv.VAPIDPublicKey
}

// Register stores a subscription, replacing the keys of an existing subscription with
// the same endpoint.
func (s *Sender) Register(ctx context.Context, endpoint, p256dh, auth string) (*Subscription, error) {
	var missing []string
	for _, f := range [][2]string{{"endpoint", endpoint}, {"p256dh_key", p256dh}, {"auth_key", auth}} {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		e := cerr.NewError(cerr.InvalidArgument, "incomplete push subscription", nil)
		for _, name := range missing {
			_ = e.AddDetailMessageWithCode(name+" is required", name+".required")
		}
		return nil, e
	}

	existing, err := s.repo.FindByEndpoint(ctx, endpoint)
	switch {
	case err == nil:
		existing.P256dhKey = p256dh
		existing.AuthKey = auth
		if err := s.repo.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case !cerr.IsCode(err, cerr.NotFound):
		return nil, err
	}

	sub := &Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   auth,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Sender) Unregister(ctx context.Context, endpoint string) error {
	return s.repo.DeleteByEndpoint(ctx, endpoint)
}

func (s *Sender) SendToAll(ctx context.Context, payload *NotificationPayload) {
	if !s.pushEnv.PushEnabled() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return
	}

	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", "error", err)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", "error", err)
		return
	}

	for _, sub := range subs {
		s.sendToSubscription(ctx, sub, data)
	}
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := s.send(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.pushEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.pushEnv.VAPIDPrivateKey,
		Subscriber:      s.pushEnv.VAPIDSubscriber,
		TTL:             86400,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}
