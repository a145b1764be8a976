package cmd

import (
	"context"
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"

	authadapter "github.com/bnema/primedictation-export/internal/adapters/auth"
	"github.com/bnema/primedictation-export/internal/domain"
)

// terminalPrompter prints sign-in instructions, optionally with a QR code
// so the flow can be finished on a phone.
type terminalPrompter struct {
	out io.Writer
	qr  bool
}

var _ authadapter.Prompter = (*terminalPrompter)(nil)

func (p *terminalPrompter) ShowAuthorizationURL(_ context.Context, provider string, authURL string) error {
	if _, err := fmt.Fprintf(p.out, "Open this URL to sign in to %s:\n%s\n", providerLabel(provider), authURL); err != nil {
		return err
	}
	return p.writeQR(authURL)
}

func (p *terminalPrompter) ShowDeviceCode(_ context.Context, provider string, code authadapter.DeviceCodeResult) error {
	_, err := fmt.Fprintf(p.out, "To sign in to %s, open %s and enter the code %s\n",
		providerLabel(provider), code.VerificationURL, code.UserCode)
	if err != nil {
		return err
	}
	return p.writeQR(code.VerificationURL)
}

func (p *terminalPrompter) writeQR(content string) error {
	if !p.qr || content == "" {
		return nil
	}
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode qr code: %w", err)
	}
	_, err = fmt.Fprint(p.out, code.ToSmallString(false))
	return err
}

func providerLabel(name string) string {
	provider, err := domain.ParseProvider(name)
	if err != nil || provider == domain.ProviderNone {
		return name
	}
	return provider.DisplayName()
}
