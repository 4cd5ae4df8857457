package notifs

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"

	dvm "github.com/dvmnet/go-dvm"
	"github.com/dvmnet/go-dvm/common"
	"github.com/dvmnet/go-dvm/models"
)

type DiscordColor int

const (
	DiscordColor_None    = iota
	DiscordColor_Info    = 3447003
	DiscordColor_Ok      = 3581519
	DiscordColor_Warning = 16776960
	DiscordColor_Alert   = 16711712
)

const DiscordPacing = 2 * time.Second

// DiscordHandler posts job lifecycle alerts (terminal errors, payment demands)
// to webhook channels.
type DiscordHandler struct {
	alertWebhook webhook.Client
	testWebhook  webhook.Client
	logger       models.Logger
}

func NewDiscordHandler(logger models.Logger) (models.Notifier, error) {
	if a, err := parseDiscordWebhookUrl(dvm.Env_DiscordAlertWebhook); err != nil {
		return nil, err
	} else if t, err := parseDiscordWebhookUrl(dvm.Env_DiscordTestWebhook); err != nil {
		return nil, err
	} else {
		return &DiscordHandler{a, t, logger}, nil
	}
}

func parseDiscordWebhookUrl(urlEnv string) (webhook.Client, error) {
	webhookUrl := os.Getenv(urlEnv)
	if len(webhookUrl) > 0 {
		if parsedUrl, err := url.Parse(webhookUrl); err != nil {
			return nil, err
		} else {
			urlParts := strings.Split(parsedUrl.Path, "/")
			if id, err := snowflake.Parse(urlParts[len(urlParts)-2]); err != nil {
				return nil, err
			} else {
				return webhook.New(id, urlParts[len(urlParts)-1]), nil
			}
		}
	}
	return nil, nil
}

func (d DiscordHandler) SendAlert(title, desc, content string) error {
	// Outside prod, alerts go to the test channel so no one gets paged from a
	// dev run.
	if os.Getenv(dvm.Env_Env) != dvm.EnvTag_Prod && d.testWebhook != nil {
		return d.sendNotif(d.testWebhook, title, desc, content, DiscordColor_Warning)
	}
	if d.alertWebhook != nil {
		return d.sendNotif(d.alertWebhook, title, desc, content, DiscordColor_Alert)
	}
	// Fall back to the test channel, if configured.
	if d.testWebhook != nil {
		return d.sendNotif(d.testWebhook, title, desc, content, DiscordColor_Alert)
	}
	return nil
}

func (d DiscordHandler) sendNotif(wh webhook.Client, title, desc, content string, color DiscordColor) error {
	messageEmbed := discord.Embed{
		Title:       title,
		Description: desc,
		Type:        discord.EmbedTypeRich,
		Color:       int(color),
	}
	_, err := wh.CreateMessage(discord.NewWebhookMessageCreateBuilder().
		SetContent(content).
		SetEmbeds(messageEmbed).
		SetUsername(common.ServiceName).
		Build(),
		rest.WithDelay(DiscordPacing),
	)
	if err != nil {
		d.logger.Errorf("sendNotif: error sending discord notification: %v, %s, %s", err, title, desc)
		return err
	}
	return nil
}
