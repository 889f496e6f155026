package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/smithy-go"
)

type mockSES struct {
	input *ses.SendEmailInput
	out   *ses.SendEmailOutput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	return m.out, m.err
}

func TestSESSender_Delivers(t *testing.T) {
	mock := &mockSES{out: &ses.SendEmailOutput{MessageId: aws.String("ses-0001")}}
	s := &SESSender{bundle: Bundle{Name: "ses"}, client: mock}

	a := s.Send(context.Background(), testMessage())
	if !a.Delivered() {
		t.Fatalf("expected delivered, got %s: %s", a.Outcome, a.Detail)
	}
	if a.MessageID != "ses-0001" {
		t.Errorf("MessageID = %q", a.MessageID)
	}

	in := mock.input
	if aws.ToString(in.Source) != `"Example News" <news@example.com>` {
		t.Errorf("Source = %q", aws.ToString(in.Source))
	}
	if len(in.Destination.ToAddresses) != 1 {
		t.Fatalf("ToAddresses = %v", in.Destination.ToAddresses)
	}
	if aws.ToString(in.Message.Body.Html.Data) != "<p>Hi Alice</p>" {
		t.Errorf("html = %q", aws.ToString(in.Message.Body.Html.Data))
	}
	if len(in.Tags) != 1 || aws.ToString(in.Tags[0].Value) != "telegram_bot" {
		t.Errorf("Tags = %+v", in.Tags)
	}
}

func TestSESSender_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{
			name: "message rejected",
			err:  &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified.", Fault: smithy.FaultClient},
			want: Rejected,
		},
		{
			name: "throttling",
			err:  &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded.", Fault: smithy.FaultClient},
			want: TransportError,
		},
		{
			name: "server fault",
			err:  &smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer},
			want: TransportError,
		},
		{
			name: "network error",
			err:  errors.New("dial tcp: i/o timeout"),
			want: TransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SESSender{bundle: Bundle{Name: "ses"}, client: &mockSES{err: tt.err}}
			a := s.Send(context.Background(), testMessage())
			if a.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", a.Outcome, tt.want)
			}
		})
	}
}

func TestSESTagValue(t *testing.T) {
	if got := sesTagValue("spring sale 2024!"); got != "spring_sale_2024" {
		t.Errorf("sesTagValue = %q", got)
	}
}
