package report

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"injury-report/internal/draft"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

// Service alerts the safety manager chat about reports that need attention
// outside the normal review cycle.
type Service struct {
	tgClient     TelegramClient
	safetyChatID int64
	renderer     draft.Renderer
	logger       *zap.Logger
}

func NewService(tg TelegramClient, safetyChatID int64, renderer draft.Renderer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tgClient:     tg,
		safetyChatID: safetyChatID,
		renderer:     renderer,
		logger:       logger,
	}
}

func (s *Service) Name() string { return "safety-alert" }

// ReportSubmitted sends the alert and the PDF for serious or reportable
// injuries. Other reports are ignored.
func (s *Service) ReportSubmitted(ctx context.Context, sub draft.Submission) error {
	rec := sub.Record
	if !rec.IsSIF && !rec.AKOSHReportRequired {
		return nil
	}

	s.logger.Info("sending safety alert", zap.String("item_id", sub.ItemID), zap.Int64("chat_id", s.safetyChatID))
	if err := s.tgClient.SendMessage(ctx, s.safetyChatID, AlertText(sub)); err != nil {
		return fmt.Errorf("failed to send safety alert: %w", err)
	}

	if s.renderer == nil {
		return nil
	}
	pdf, err := s.renderer.Render(rec, sub.Form)
	if err != nil {
		return fmt.Errorf("alert sent but PDF failed: %w", err)
	}
	fileName := fmt.Sprintf("injury_report_%s.pdf", sub.ItemID)
	if err := s.tgClient.SendDocument(ctx, s.safetyChatID, pdf, fileName, rec.Title); err != nil {
		return fmt.Errorf("failed to send report PDF: %w", err)
	}
	s.logger.Info("safety alert sent", zap.String("item_id", sub.ItemID))
	return nil
}

// AlertText is the plain-text alert for a submitted report.
func AlertText(sub draft.Submission) string {
	rec := sub.Record
	var b strings.Builder
	if rec.IsSIF {
		b.WriteString("SERIOUS INJURY OR FATALITY REPORTED\n")
	} else {
		b.WriteString("Reportable injury submitted\n")
	}
	fmt.Fprintf(&b, "%s\n", rec.Title)
	fmt.Fprintf(&b, "Treatment: %s\n", rec.TreatmentType)
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity)
	if rec.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", rec.Location)
	}
	if rec.AKOSHReportRequired {
		fmt.Fprintf(&b, "External report: %s", rec.AKOSHReportType)
		if rec.AKOSHReportDeadline != "" {
			fmt.Fprintf(&b, ", due by %s", rec.AKOSHReportDeadline)
		} else {
			b.WriteString(", deadline unknown (no incident time)")
		}
		b.WriteString("\n")
	}
	if by := sub.SubmittedBy.Name; by != "" {
		fmt.Fprintf(&b, "Submitted by: %s\n", by)
	}
	fmt.Fprintf(&b, "Item: %s", sub.ItemID)
	return b.String()
}
