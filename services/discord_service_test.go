package services

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostats/models"
)

func TestDiscord_DisabledWithoutToken(t *testing.T) {
	d, err := NewDiscordBotService("", "123", true)
	require.NoError(t, err)
	assert.False(t, d.Enabled())

	assert.NoError(t, d.NotifyFailure(errors.New("boom"), 3))
	assert.NoError(t, d.NotifySuccess(&models.RunResult{}, nil))
	assert.Error(t, d.SendMessage("hello"))
	d.Close()
}

func TestDiscord_CommandReply(t *testing.T) {
	d := &DiscordBotService{}

	assert.Empty(t, d.commandReply("hello there"))
	assert.Empty(t, d.commandReply("!autostats"))
	assert.Contains(t, d.commandReply("!autostats ping"), "Pong")
	assert.Contains(t, d.commandReply("!autostats help"), "!autostats status")
	assert.Equal(t, "No run recorded yet.", d.commandReply("!autostats status"))
	assert.Contains(t, d.commandReply("!autostats dance"), "Unknown command")

	d.StatusFunc = func() string { return "last run: success" }
	assert.Equal(t, "last run: success", d.commandReply("!autostats status"))
}

type fakeSender struct {
	channel string
	texts   []string
	embeds  []*discordgo.MessageEmbed
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.texts = append(f.texts, content)
	return &discordgo.Message{}, nil
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{}, nil
}

func TestDiscord_MessageHandlerRepliesAsText(t *testing.T) {
	sender := &fakeSender{}
	d := &DiscordBotService{sender: sender, channelID: "chan", botID: "bot", enabled: true}
	d.StatusFunc = func() string { return "Last run success" }

	msg := func(author, channel, content string) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			Author:    &discordgo.User{ID: author},
			ChannelID: channel,
			Content:   content,
		}}
	}

	d.messageHandler(nil, msg("bot", "chan", "!autostats status"))
	d.messageHandler(nil, msg("user", "other", "!autostats status"))
	d.messageHandler(nil, msg("user", "chan", "good morning"))
	assert.Empty(t, sender.texts)

	d.messageHandler(nil, msg("user", "chan", "!autostats status"))
	require.Len(t, sender.texts, 1)
	assert.Equal(t, "chan", sender.channel)
	assert.Equal(t, "Last run success", sender.texts[0])
	assert.Empty(t, sender.embeds)
}

func TestDiscord_NotifyUsesEmbeds(t *testing.T) {
	sender := &fakeSender{}
	d := &DiscordBotService{sender: sender, channelID: "chan", enabled: true}

	require.NoError(t, d.NotifySuccess(&models.RunResult{Status: models.RunSuccess}, nil))
	assert.Empty(t, sender.embeds)

	require.NoError(t, d.NotifyFailure(errors.New("boom"), 3))
	d.notifyOK = true
	require.NoError(t, d.NotifySuccess(&models.RunResult{Status: models.RunSuccess}, nil))
	assert.Len(t, sender.embeds, 2)
}

func TestDiscord_Embeds(t *testing.T) {
	failure := failureEmbed(errors.New("sheet write failed"), 3)
	assert.Equal(t, colorRed, failure.Color)
	assert.Contains(t, failure.Description, "sheet write failed")
	assert.Equal(t, "3", failure.Fields[0].Value)

	nodes := "42"
	result := &models.RunResult{Message: MessageUpdated, Attempts: 1, Timestamp: time.Now()}
	success := successEmbed(result, []*models.Snapshot{
		{Sheet: "Chronos", Stats: models.NetworkStats{NodeCount: &nodes}, SpacePledged: big.NewInt(100)},
		{Sheet: "mainnet", Metrics: &models.DerivedMetrics{SpacePledgedPiB: "1.00", SpacePledgedPB: "1.13", FeePerGB: "0.01"}},
	})
	assert.Equal(t, colorGreen, success.Color)
	require.Len(t, success.Fields, 2)
	assert.Contains(t, success.Fields[0].Value, "Nodes: 42")
	assert.Contains(t, success.Fields[0].Value, "Pledged: 100 bytes")
	assert.Contains(t, success.Fields[1].Value, "Nodes: -")
	assert.Contains(t, success.Fields[1].Value, "Fee per GB: 0.01")
}
