package whatsapp

import (
	"fmt"

	"github.com/ramsalab/survey-api/internal/dto"
)

// ParseInbound normalizes one raw Cloud API message into the canonical
// ParsedMessage the state machines consume.
func ParseInbound(msg dto.InboundMessage) (*dto.ParsedMessage, error) {
	if msg.From == "" {
		return nil, fmt.Errorf("inbound message missing sender")
	}

	parsed := &dto.ParsedMessage{
		MessageID: msg.ID,
		From:      msg.From,
		Kind:      msg.Type,
	}

	switch msg.Type {
	case dto.KindText:
		if msg.Text == nil {
			return nil, fmt.Errorf("text message missing body")
		}
		parsed.Text = msg.Text.Body

	case dto.KindInteractive:
		if msg.Interactive == nil {
			return nil, fmt.Errorf("interactive message missing payload")
		}
		switch msg.Interactive.Type {
		case dto.ReplyButton:
			if msg.Interactive.ButtonReply == nil {
				return nil, fmt.Errorf("button reply missing payload")
			}
			parsed.Interactive = &dto.InteractiveReply{
				Type:  dto.ReplyButton,
				ID:    msg.Interactive.ButtonReply.ID,
				Title: msg.Interactive.ButtonReply.Title,
			}
		case dto.ReplyList:
			if msg.Interactive.ListReply == nil {
				return nil, fmt.Errorf("list reply missing payload")
			}
			parsed.Interactive = &dto.InteractiveReply{
				Type:        dto.ReplyList,
				ID:          msg.Interactive.ListReply.ID,
				Title:       msg.Interactive.ListReply.Title,
				Description: msg.Interactive.ListReply.Description,
			}
		default:
			return nil, fmt.Errorf("unsupported interactive type %q", msg.Interactive.Type)
		}

	case dto.KindAudio, dto.KindImage, dto.KindVideo, dto.KindDocument, dto.KindSticker:
		media := mediaPayload(msg)
		if media == nil {
			return nil, fmt.Errorf("%s message missing media payload", msg.Type)
		}
		parsed.Media = &dto.MediaDescriptor{
			RemoteID:    media.ID,
			MimeType:    media.MimeType,
			ChannelType: msg.Type,
			Caption:     media.Caption,
			Voice:       media.Voice,
			Animated:    media.Animated,
		}

	default:
		return nil, fmt.Errorf("unsupported message type %q", msg.Type)
	}

	return parsed, nil
}

func mediaPayload(msg dto.InboundMessage) *dto.MediaPayload {
	switch msg.Type {
	case dto.KindAudio:
		return msg.Audio
	case dto.KindImage:
		return msg.Image
	case dto.KindVideo:
		return msg.Video
	case dto.KindDocument:
		return msg.Document
	case dto.KindSticker:
		return msg.Sticker
	default:
		return nil
	}
}
