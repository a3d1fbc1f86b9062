package printer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zebra-print/internal/cpcl"
)

// Service renders labels and sends them to the printer
type Service struct {
	link   *LinkManager
	logger *zap.Logger
}

// NewService creates a print service on top of link
func NewService(link *LinkManager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		link:   link,
		logger: logger.With(zap.String("component", "print")),
	}
}

// Link returns the link manager the service writes through
func (s *Service) Link() *LinkManager {
	return s.link
}

// PrintLabel renders label and writes it as one document
func (s *Service) PrintLabel(ctx context.Context, label cpcl.Label) error {
	log := s.logger.With(zap.String("job_id", uuid.NewString()))

	doc := cpcl.Render(label)
	data, err := doc.Bytes()
	if err != nil {
		log.Error("Failed to encode label", zap.Error(err))
		return fmt.Errorf("failed to encode label: %w", err)
	}
	log.Debug("Label rendered", zap.String("document", doc.String()))

	if err := s.link.Write(ctx, data); err != nil {
		log.Error("Print failed", zap.Error(err))
		return err
	}

	log.Info("Label printed", zap.Int("bytes", len(data)))
	return nil
}

// PrintBarcode prints the demonstration part label. content only tags the
// request in the log; the label itself is fixed.
func (s *Service) PrintBarcode(ctx context.Context, content string) error {
	s.logger.Debug("Test label requested", zap.String("content", content))
	return s.PrintLabel(ctx, cpcl.DemoPart.Label())
}

// PrintAsync runs PrintLabel on its own goroutine so a slow transport does
// not block the caller. done, if set, receives the result on that goroutine.
func (s *Service) PrintAsync(label cpcl.Label, done func(error)) {
	go func() {
		err := s.PrintLabel(context.Background(), label)
		if done != nil {
			done(err)
		}
	}()
}
