package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"synxronfiles/internal/domain"
)

const (
	ServiceName = "antivirus.v1.Scanner"

	scanStreamMethod  = "/" + ServiceName + "/ScanStream"
	checkStreamMethod = "/" + ServiceName + "/CheckStream"
	sendMethod        = "/" + ServiceName + "/Send"

	// ChunkSize размер одного сообщения потока содержимого
	ChunkSize = 64 * 1024
)

// Поля ответа и запроса антивируса
const (
	FieldVirusDetected  = "virus_detected"
	FieldVirusSignature = "virus_signature"
	FieldError          = "error"
	FieldRequestToken   = "request_token"
)

var contentStreamDesc = &grpc.StreamDesc{ClientStreams: true}

// GRPCClient клиент антивирусного сервиса.
// Содержимое передается потоком BytesValue, ответ приходит одним Struct.
type GRPCClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

func NewGRPCClient(conn grpc.ClientConnInterface, timeout time.Duration) *GRPCClient {
	return &GRPCClient{
		conn:    conn,
		timeout: timeout,
	}
}

// ScanStream полная проверка содержимого, используется для повторной проверки
func (c *GRPCClient) ScanStream(ctx context.Context, r io.Reader) (domain.ScanResult, error) {
	return c.streamContent(ctx, scanStreamMethod, r)
}

// CheckStream проверка во время загрузки
func (c *GRPCClient) CheckStream(ctx context.Context, r io.Reader) (domain.ScanResult, error) {
	return c.streamContent(ctx, checkStreamMethod, r)
}

func (c *GRPCClient) Send(ctx context.Context, requestToken string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{
		FieldRequestToken: requestToken,
	})
	if err != nil {
		return fmt.Errorf("failed to build scan request: %w", err)
	}

	if err := c.conn.Invoke(ctx, sendMethod, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("failed to send scan request: %w", err)
	}
	return nil
}

func (c *GRPCClient) streamContent(ctx context.Context, method string, r io.Reader) (domain.ScanResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, contentStreamDesc, method)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("failed to open scan stream: %w", err)
	}

	buf := make([]byte, ChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := wrapperspb.Bytes(append([]byte(nil), buf[:n]...))
			if err := stream.SendMsg(chunk); err != nil {
				// io.EOF: сервер завершил поток раньше, статус придет в RecvMsg
				if errors.Is(err, io.EOF) {
					break
				}
				return domain.ScanResult{}, fmt.Errorf("failed to send chunk: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return domain.ScanResult{}, fmt.Errorf("failed to read content: %w", readErr)
		}
	}

	if err := stream.CloseSend(); err != nil {
		return domain.ScanResult{}, fmt.Errorf("failed to close scan stream: %w", err)
	}

	reply := &structpb.Struct{}
	if err := stream.RecvMsg(reply); err != nil {
		return domain.ScanResult{}, fmt.Errorf("failed to receive scan result: %w", err)
	}

	return ResultFromStruct(reply), nil
}

func (c *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ResultFromStruct переводит ответ антивируса в ScanResult.
// Отсутствие поля virus_detected оставляет результат пустым.
func ResultFromStruct(s *structpb.Struct) domain.ScanResult {
	fields := s.GetFields()

	var result domain.ScanResult
	if v, ok := fields[FieldVirusDetected].GetKind().(*structpb.Value_BoolValue); ok {
		detected := v.BoolValue
		result.VirusDetected = &detected
	}
	result.VirusSignature = fields[FieldVirusSignature].GetStringValue()
	result.Error = fields[FieldError].GetStringValue()

	return result
}
