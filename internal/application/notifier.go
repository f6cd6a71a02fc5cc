package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	"github.com/lumenchat/lumenchat-backend/pkg/helpers"
	"github.com/lumenchat/lumenchat-backend/pkg/mailer"
	mailtpl "github.com/lumenchat/lumenchat-backend/pkg/mailer/templates"
)

// Notifier fans out plan transitions: an email job on the queue and a
// refreshed user document in Elasticsearch. Both paths are best-effort; a
// plan write never fails because a side channel is down.
type Notifier struct {
	Queue        *helpers.RabbitPublisher
	ES           *elasticsearch.Client
	ESUsersIndex string
	Logger       *logrus.Logger

	AppName    string
	SupportURL string
	BillingURL string
	LogoURL    string
}

// PlanChanged publishes a lifecycle email for the transition and re-indexes
// the user. emailType is one of the mailtpl plan event names; pass "" to
// skip the email (e.g. reconciler no-ops).
func (n *Notifier) PlanChanged(ctx context.Context, u *entity.User, emailType string) {
	if n == nil {
		return
	}
	if emailType != "" && u.Email != "" {
		n.publishEmail(ctx, u, emailType)
	}
	n.indexUser(ctx, u)
}

func (n *Notifier) publishEmail(ctx context.Context, u *entity.User, emailType string) {
	if n.Queue == nil {
		return
	}
	data := map[string]any{
		"Type":       emailType,
		"Name":       u.Name,
		"Email":      u.Email,
		"PlanStatus": string(u.PlanStatus),
		"AppName":    n.AppName,
		"SupportURL": n.SupportURL,
		"BillingURL": n.BillingURL,
		"LogoURL":    n.LogoURL,
	}
	if u.TrialEndsAt != nil {
		data["TrialEndsAt"] = u.TrialEndsAt.UTC().Format("02 January 2006")
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.PlanUpdate,
		Data:     data,
	}
	if err := n.Queue.PublishJSON(ctx, job); err != nil && n.Logger != nil {
		n.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id": u.ID,
			"type":    emailType,
		}).Warn("plan email publish failed")
	}
}

func (n *Notifier) indexUser(ctx context.Context, u *entity.User) {
	if n.ES == nil || n.ESUsersIndex == "" {
		return
	}
	doc := map[string]any{
		"id":           u.ID,
		"identity_id":  u.IdentityID,
		"email":        u.Email,
		"name":         u.Name,
		"avatar_url":   u.AvatarURL,
		"plan_status":  string(u.PlanStatus),
		"thread_count": u.ThreadCount,
		"updated_at":   u.UpdatedAt.Format(time.RFC3339Nano),
	}
	if u.TrialEndsAt != nil {
		doc["trial_ends_at"] = u.TrialEndsAt.Format(time.RFC3339Nano)
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: n.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, n.ES)
	if err != nil {
		if n.Logger != nil {
			n.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && n.Logger != nil {
		n.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
}
