package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// Discord API error codes that will not succeed on retry.
const (
	codeUnknownChannel     = 10003
	codeMissingAccess      = 50001
	codeMissingPermissions = 50013
)

// Discord posts embeds through the REST API. No gateway connection is
// opened.
type Discord struct {
	session *discordgo.Session
	logger  *zap.Logger
}

func NewDiscord(token string, logger *zap.Logger) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: session, logger: logger.With(zap.String("component", "discord"))}, nil
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, body event.Body) (string, error) {
	msg := BuildMessage(body)
	sent, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyDiscord(err)
	}
	return sent.ID, nil
}

// BuildMessage converts a card body into a Discord message.
func BuildMessage(body event.Body) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       body.Title,
		Description: body.Description,
		Color:       body.Color,
	}
	for _, f := range body.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if body.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: body.Footer}
	}
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	switch {
	case body.Image != nil:
		msg.Files = []*discordgo.File{{
			Name:        body.Image.Name,
			ContentType: body.Image.ContentType,
			Reader:      bytes.NewReader(body.Image.Data),
		}}
		if body.Image.ContentType == "" || isImage(body.Image.ContentType) {
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + body.Image.Name}
		}
	case body.ImageURL != "":
		embed.Image = &discordgo.MessageEmbedImage{URL: body.ImageURL}
	}
	return msg
}

func isImage(contentType string) bool {
	return len(contentType) > 6 && contentType[:6] == "image/"
}

func classifyDiscord(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return &Error{Kind: Transient, Err: err}
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case codeUnknownChannel:
			return &Error{Kind: NotFound, Err: err}
		case codeMissingAccess, codeMissingPermissions:
			return &Error{Kind: Forbidden, Err: err}
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return &Error{Kind: NotFound, Err: err}
		case http.StatusForbidden, http.StatusUnauthorized:
			return &Error{Kind: Forbidden, Err: err}
		}
	}
	return &Error{Kind: Transient, Err: err}
}
