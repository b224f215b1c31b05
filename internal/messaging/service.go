package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medspa-booking-assistant/internal/contacts"
	"github.com/wolfman30/medspa-booking-assistant/internal/dialogue"
	"github.com/wolfman30/medspa-booking-assistant/pkg/logging"
)

var messagingTracer = otel.Tracer("medspa.internal.messaging")

const providerWhatsApp = "whatsapp"

// Inbound outcomes reported to the Recorder.
const (
	InboundProcessed = "processed"
	InboundDuplicate = "duplicate"
	InboundError     = "error"
)

type processedStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Forget(ctx context.Context, provider, eventID string) error
}

type registry interface {
	ResolveContact(ctx context.Context, phone string, clinicID uuid.UUID) (*contacts.Contact, error)
	UpdateContactName(ctx context.Context, contactID uuid.UUID, name string) error
	EnsureOpenConversation(ctx context.Context, clinicID, contactID uuid.UUID, channel string) (*contacts.Conversation, error)
	AppendMessage(ctx context.Context, msg contacts.Message) (*contacts.Message, error)
	SetContext(ctx context.Context, conversationID uuid.UUID, data json.RawMessage) error
}

type dialogueEngine interface {
	Handle(ctx context.Context, turn dialogue.Turn) dialogue.Result
}

// Outbound is the provider client used to answer patients.
type Outbound interface {
	SendText(ctx context.Context, to, body string) (string, error)
	MarkAsRead(ctx context.Context, messageID string) error
}

// Recorder observes pipeline outcomes.
type Recorder interface {
	RecordInbound(status string)
	RecordOutbound(status string)
}

// Service runs one inbound message through tenancy, persistence, dialogue
// and reply delivery.
type Service struct {
	processed processedStore
	tenants   contacts.TenantResolver
	registry  registry
	dialogue  dialogueEngine
	outbound  Outbound
	recorder  Recorder
	logger    *logging.Logger
}

// NewService wires the inbound pipeline. processed may be nil to disable dedupe.
func NewService(processed processedStore, tenants contacts.TenantResolver, reg registry, engine dialogueEngine, outbound Outbound, logger *logging.Logger) *Service {
	if tenants == nil || reg == nil || engine == nil || outbound == nil {
		panic("messaging: tenants, registry, dialogue and outbound client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		processed: processed,
		tenants:   tenants,
		registry:  reg,
		dialogue:  engine,
		outbound:  outbound,
		logger:    logger,
	}
}

// WithRecorder attaches a metrics recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Process handles one inbound text message. Duplicates return nil without
// side effects.
func (s *Service) Process(ctx context.Context, msg InboundMessage) error {
	ctx, span := messagingTracer.Start(ctx, "messaging.process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("medspa.whatsapp.message_id", msg.ExternalID))

	if s.processed != nil && msg.ExternalID != "" {
		first, err := s.processed.MarkProcessed(ctx, providerWhatsApp, msg.ExternalID)
		if err != nil {
			s.recordInbound(InboundError)
			span.RecordError(err)
			return err
		}
		if !first {
			s.logger.Debug("duplicate whatsapp message dropped", "message_id", msg.ExternalID)
			s.recordInbound(InboundDuplicate)
			return nil
		}
	}

	conv, contact, err := s.persistInbound(ctx, msg)
	if err != nil {
		s.forget(ctx, msg.ExternalID)
		s.recordInbound(InboundError)
		span.RecordError(err)
		if contact != nil {
			s.recoverTurn(ctx, conv, contact)
		}
		return err
	}
	span.SetAttributes(
		attribute.String("medspa.clinic_id", conv.ClinicID.String()),
		attribute.String("medspa.conversation_id", conv.ID.String()),
	)

	res := s.dialogue.Handle(ctx, dialogue.Turn{
		ClinicID:  conv.ClinicID,
		ContactID: contact.ID,
		Text:      msg.Text,
		Context:   conv.Context,
	})

	encoded, err := dialogue.Encode(res.Next)
	if err == nil {
		err = s.registry.SetContext(ctx, conv.ID, encoded)
	}
	if err != nil {
		err = fmt.Errorf("messaging: store context: %w", err)
		s.forget(ctx, msg.ExternalID)
		s.recordInbound(InboundError)
		span.RecordError(err)
		if res.Appointment != nil {
			// Booked turns already end in Initial; confirm instead of apologizing.
			s.reply(ctx, conv, contact, res.Reply)
			s.resetContext(ctx, conv)
		} else {
			s.recoverTurn(ctx, conv, contact)
		}
		return err
	}
	s.recordInbound(InboundProcessed)

	s.reply(ctx, conv, contact, res.Reply)

	if msg.ExternalID != "" {
		if err := s.outbound.MarkAsRead(ctx, msg.ExternalID); err != nil {
			s.logger.Warn("mark as read failed", "message_id", msg.ExternalID, "error", err)
		}
	}
	return nil
}

// recoverTurn apologizes and restarts the conversation after a turn could not
// be saved.
func (s *Service) recoverTurn(ctx context.Context, conv *contacts.Conversation, contact *contacts.Contact) {
	ctx = context.WithoutCancel(ctx)
	if conv == nil {
		if _, err := s.outbound.SendText(ctx, contact.Phone, dialogue.ReplyTurnFailed); err != nil {
			s.logger.Error("whatsapp apology failed", "contact_id", contact.ID, "error", err)
		}
		return
	}
	s.reply(ctx, conv, contact, dialogue.ReplyTurnFailed)
	s.resetContext(ctx, conv)
}

func (s *Service) resetContext(ctx context.Context, conv *contacts.Conversation) {
	initial, err := dialogue.Encode(dialogue.Initial{})
	if err == nil {
		err = s.registry.SetContext(context.WithoutCancel(ctx), conv.ID, initial)
	}
	if err != nil {
		s.logger.Error("conversation reset failed", "conversation_id", conv.ID, "error", err)
	}
}

func (s *Service) persistInbound(ctx context.Context, msg InboundMessage) (*contacts.Conversation, *contacts.Contact, error) {
	clinicID, err := s.tenants.ResolveClinic(ctx, msg.PhoneNumberID)
	if err != nil {
		return nil, nil, err
	}
	contact, err := s.registry.ResolveContact(ctx, msg.From, clinicID)
	if err != nil {
		return nil, nil, err
	}
	if contact.Created && msg.ProfileName != "" {
		if err := s.registry.UpdateContactName(ctx, contact.ID, msg.ProfileName); err != nil {
			s.logger.Warn("contact name update failed", "contact_id", contact.ID, "error", err)
		} else {
			contact.FullName = msg.ProfileName
		}
	}
	conv, err := s.registry.EnsureOpenConversation(ctx, clinicID, contact.ID, contacts.ChannelWhatsApp)
	if err != nil {
		return nil, contact, err
	}
	if _, err := s.registry.AppendMessage(ctx, contacts.Message{
		ClinicID:          clinicID,
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         contacts.DirectionInbound,
		Channel:           contacts.ChannelWhatsApp,
		Content:           msg.Text,
		Status:            contacts.MessageStatusDelivered,
		ExternalMessageID: msg.ExternalID,
	}); err != nil {
		return conv, contact, err
	}
	return conv, contact, nil
}

func (s *Service) reply(ctx context.Context, conv *contacts.Conversation, contact *contacts.Contact, body string) {
	status := contacts.MessageStatusSent
	providerID, err := s.outbound.SendText(ctx, contact.Phone, body)
	if err != nil {
		status = contacts.MessageStatusFailed
		s.logger.Error("whatsapp reply failed", "conversation_id", conv.ID, "error", err)
	}
	if s.recorder != nil {
		s.recorder.RecordOutbound(status)
	}
	if _, err := s.registry.AppendMessage(ctx, contacts.Message{
		ClinicID:          conv.ClinicID,
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         contacts.DirectionOutbound,
		Channel:           contacts.ChannelWhatsApp,
		Content:           body,
		Status:            status,
		ExternalMessageID: providerID,
	}); err != nil {
		s.logger.Error("persist outbound message failed", "conversation_id", conv.ID, "error", err)
	}
}

func (s *Service) forget(ctx context.Context, messageID string) {
	if s.processed == nil || messageID == "" {
		return
	}
	if err := s.processed.Forget(context.WithoutCancel(ctx), providerWhatsApp, messageID); err != nil {
		s.logger.Warn("dedupe marker not cleared", "message_id", messageID, "error", err)
	}
}

func (s *Service) recordInbound(status string) {
	if s.recorder != nil {
		s.recorder.RecordInbound(status)
	}
}
