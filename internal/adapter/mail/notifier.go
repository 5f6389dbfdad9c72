package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Transport delivers composed messages. *gomail.Client satisfies it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// Notifier implements port.Notifier over SMTP.
type Notifier struct {
	transport Transport
	from      string
}

// NewSMTPClient builds a go-mail client from opts. Authentication is enabled when a username is set.
func NewSMTPClient(opts Options) (*gomail.Client, error) {
	clientOpts := []gomail.Option{gomail.WithPort(opts.Port)}
	if opts.TLS {
		clientOpts = append(clientOpts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		clientOpts = append(clientOpts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(opts.Username),
			gomail.WithPassword(opts.Password),
		)
	}

	c, err := gomail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func NewNotifier(transport Transport, from string) *Notifier {
	return &Notifier{transport: transport, from: from}
}

func (n *Notifier) SendBuyerOrderConfirmation(ctx context.Context, msg domain.BuyerConfirmation) error {
	return n.send(ctx, msg.Buyer.Email, "Order Confirmed - "+msg.OrderID, buyerTemplates, msg)
}

func (n *Notifier) SendSellerOrderNotification(ctx context.Context, msg domain.SellerNotification) error {
	return n.send(ctx, msg.Seller.Email, "New Order Received - "+msg.OrderID, sellerTemplates, msg)
}

func (n *Notifier) SendDeliveryCode(ctx context.Context, msg domain.DeliveryCodeNotice) error {
	return n.send(ctx, msg.Buyer.Email, "Your Delivery Code (DAC) - Order "+msg.OrderID, codeTemplates, msg)
}

func (n *Notifier) send(ctx context.Context, to, subject string, tpl bodyTemplates, data any) error {
	m, err := n.compose(to, subject, tpl, data)
	if err != nil {
		return err
	}
	if err := n.transport.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	logging.FromCtx(ctx).Info("email sent", "to", to, "subject", subject)
	return nil
}

func (n *Notifier) compose(to, subject string, tpl bodyTemplates, data any) (*gomail.Msg, error) {
	if to == "" {
		return nil, errors.New("recipient has no email address")
	}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	m := gomail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(subject)
	m.SetMessageID()
	m.SetDate()
	m.SetBodyString(gomail.TypeTextPlain, text.String())
	m.AddAlternativeString(gomail.TypeTextHTML, html.String())
	return m, nil
}
