package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/openbci/internal/discovery"
)

// Printer writes styled, run-once output such as the discover listing
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details map[string]string) {
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintServices lists discovered servers, one block per server
func (p *Printer) PrintServices(services []*discovery.Service) {
	p.Println(RenderServices(services, p.width))
}

// RenderServices renders discovered servers for the discover command
func RenderServices(services []*discovery.Service, width int) string {
	if len(services) == 0 {
		return NewWarningResult("No OpenBCI servers found", map[string]string{
			"Service": discovery.ServiceType,
		}).SetWidth(width).Render()
	}

	blocks := make([]string, 0, len(services))
	for _, svc := range services {
		name := lipgloss.NewStyle().Foreground(SuccessColor).Bold(true).
			Render(LiveMarker + " " + svc.Instance)

		details := []string{
			detailLine("Address", fmt.Sprintf("%s:%d", svc.IP, svc.Port)),
			detailLine("Stream", svc.WebSocketURL()),
		}
		if v := svc.GetMetadata("version"); v != "" {
			details = append(details, detailLine("Version", v))
		}
		if ep := svc.GetMetadata("endpoint"); ep != "" {
			details = append(details, detailLine("Board", ep))
		}
		blocks = append(blocks, name+"\n"+strings.Join(details, "\n"))
	}

	title := SuccessTitleStyle.Render(fmt.Sprintf("Found %d OpenBCI server(s)", len(services)))
	return HeaderBorderStyle(width).Padding(0, 1).
		Render(title + "\n\n" + strings.Join(blocks, "\n\n"))
}

func detailLine(key, value string) string {
	return ResultKeyStyle.Render("   "+key+":") + " " + ResultValueStyle.Render(value)
}
