package payment

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type btcpayMethod struct {
	gateway  Gateway
	verifier *Verifier
}

// NewBTCPayMethod binds the invoicing client and verifier into one selectable method.
func NewBTCPayMethod(gateway Gateway) Method {
	return &btcpayMethod{
		gateway:  gateway,
		verifier: NewVerifier(gateway),
	}
}

func (m *btcpayMethod) Name() string { return MethodBTCPay }

func (m *btcpayMethod) Pay(ctx context.Context, cfg GatewayConfig, req InvoiceRequest) (*PayResult, error) {
	return m.gateway.CreateInvoice(ctx, cfg, req)
}

func (m *btcpayMethod) Notify(ctx context.Context, cfg GatewayConfig, event WebhookEvent) (Verdict, error) {
	return m.verifier.Verify(ctx, cfg, event)
}

// Registry resolves a method by name, ignoring case.
type Registry struct {
	methods map[string]Method
}

func NewRegistry(methods ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods[strings.ToLower(m.Name())] = m
	}
	return r
}

func (r *Registry) Get(name string) (Method, error) {
	m, ok := r.methods[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown payment method %q", name)
	}
	return m, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for _, m := range r.methods {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}
