package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"autostats/models"
)

const (
	colorRed   = 15158332
	colorGreen = 3066993
	colorBlue  = 3447003
)

// Notifier reports run outcomes to operators.
type Notifier interface {
	NotifyFailure(err error, attempts int) error
	NotifySuccess(result *models.RunResult, snapshots []*models.Snapshot) error
}

// channelSender is the subset of *discordgo.Session used to post messages.
type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordBotService struct {
	session   *discordgo.Session
	sender    channelSender
	channelID string
	botID     string
	enabled   bool
	notifyOK  bool

	// StatusFunc answers the "!autostats status" command.
	StatusFunc func() string
}

func NewDiscordBotService(token, channelID string, notifyOK bool) (*DiscordBotService, error) {
	if token == "" {
		log.Info().Msg("Discord bot token not provided, Discord notifications disabled")
		return &DiscordBotService{enabled: false}, nil
	}

	if channelID == "" {
		log.Info().Msg("Discord channel ID not provided, Discord notifications disabled")
		return &DiscordBotService{enabled: false}, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	user, err := session.User("@me")
	if err != nil {
		return nil, fmt.Errorf("failed to get bot user: %w", err)
	}

	botService := &DiscordBotService{
		session:   session,
		sender:    session,
		channelID: channelID,
		botID:     user.ID,
		enabled:   true,
		notifyOK:  notifyOK,
	}

	session.AddHandler(botService.messageHandler)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}

	log.Info().Str("bot_id", user.ID).Str("channel", channelID).Msg("Discord bot connected")
	return botService, nil
}

func (d *DiscordBotService) Enabled() bool {
	return d != nil && d.enabled
}

func (d *DiscordBotService) Close() {
	if d.Enabled() && d.session != nil {
		log.Debug().Msg("Closing Discord bot connection")
		_ = d.session.Close()
	}
}

func (d *DiscordBotService) messageHandler(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == d.botID || m.ChannelID != d.channelID {
		return
	}
	if reply := d.commandReply(m.Content); reply != "" {
		if err := d.SendMessage(reply); err != nil {
			log.Warn().Err(err).Msg("Failed to answer Discord command")
		}
	}
}

func (d *DiscordBotService) commandReply(content string) string {
	if !strings.HasPrefix(content, "!autostats") {
		return ""
	}
	args := strings.Fields(content)
	if len(args) < 2 {
		return ""
	}

	switch args[1] {
	case "ping":
		return "Pong! autostats is online."
	case "help":
		return "**autostats commands:**\n" +
			"`!autostats ping` - Check if the bot is online\n" +
			"`!autostats status` - Show the last collection run"
	case "status":
		if d.StatusFunc == nil {
			return "No run recorded yet."
		}
		return d.StatusFunc()
	default:
		return fmt.Sprintf("Unknown command: `%s`. Try `!autostats help`", args[1])
	}
}

// NotifyFailure is sent once a run has exhausted its attempts.
func (d *DiscordBotService) NotifyFailure(err error, attempts int) error {
	if !d.Enabled() {
		return nil
	}
	if _, sendErr := d.sender.ChannelMessageSendEmbed(d.channelID, failureEmbed(err, attempts)); sendErr != nil {
		return fmt.Errorf("failed to send Discord message: %w", sendErr)
	}
	log.Debug().Msg("Failure notification sent to Discord")
	return nil
}

func (d *DiscordBotService) NotifySuccess(result *models.RunResult, snapshots []*models.Snapshot) error {
	if !d.Enabled() || !d.notifyOK {
		return nil
	}
	if _, err := d.sender.ChannelMessageSendEmbed(d.channelID, successEmbed(result, snapshots)); err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}
	return nil
}

// SendMessage sends a simple text message to the channel
func (d *DiscordBotService) SendMessage(message string) error {
	if !d.Enabled() {
		return fmt.Errorf("Discord bot not enabled")
	}
	if _, err := d.sender.ChannelMessageSend(d.channelID, message); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func failureEmbed(err error, attempts int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Telemetry collection failed",
		Description: fmt.Sprintf("```%s```", err),
		Color:       colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Attempts", Value: fmt.Sprintf("%d", attempts), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func successEmbed(result *models.RunResult, snapshots []*models.Snapshot) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Telemetry rows appended",
		Description: result.Message,
		Color:       colorGreen,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Attempts: %d", result.Attempts),
		},
		Timestamp: result.Timestamp.Format(time.RFC3339),
	}
	if len(snapshots) == 0 {
		embed.Color = colorBlue
	}

	for _, snap := range snapshots {
		value := fmt.Sprintf("Nodes: %s\nPledged: %s bytes", orDash(snap.Stats.NodeCount), bigOrDash(snap))
		if snap.Metrics != nil {
			value += fmt.Sprintf("\n%s PiB / %s PB\nFee per GB: %s", snap.Metrics.SpacePledgedPiB, snap.Metrics.SpacePledgedPB, snap.Metrics.FeePerGB)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   snap.Sheet,
			Value:  value,
			Inline: true,
		})
	}
	return embed
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func bigOrDash(snap *models.Snapshot) string {
	if snap.SpacePledged == nil {
		return "-"
	}
	return snap.SpacePledged.String()
}
