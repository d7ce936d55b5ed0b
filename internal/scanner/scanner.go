package scanner

import (
	"context"
	"io"

	"synxronfiles/internal/domain"
)

// Sender асинхронная отправка на проверку
type Sender interface {
	Send(ctx context.Context, requestToken string) error
}

// Scanner объединяет синхронные проверки через gRPC
// и асинхронную отправку через выбранный транспорт
type Scanner struct {
	streams *GRPCClient
	sender  Sender
}

var _ domain.Scanner = (*Scanner)(nil)

// New создает сканер. Если sender == nil, асинхронные запросы идут через gRPC.
func New(streams *GRPCClient, sender Sender) *Scanner {
	if sender == nil {
		sender = streams
	}
	return &Scanner{
		streams: streams,
		sender:  sender,
	}
}

func (s *Scanner) ScanStream(ctx context.Context, r io.Reader) (domain.ScanResult, error) {
	return s.streams.ScanStream(ctx, r)
}

func (s *Scanner) CheckStream(ctx context.Context, r io.Reader) (domain.ScanResult, error) {
	return s.streams.CheckStream(ctx, r)
}

func (s *Scanner) Send(ctx context.Context, requestToken string) error {
	return s.sender.Send(ctx, requestToken)
}
