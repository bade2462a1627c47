package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/eduavalia/backend/core"
)

var (
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	conf             *core.Config
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		conf:             conf,
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	err := msg.Render(svc.conf)
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "rendering email"))
	}
	if msg.HasRecipients() && msg.HasContent() {
		svc.send(*msg)
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

func (svc consoleService) send(msg core.EmailMessage) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", svc.joinAddresses(msg.To))
	_, _ = fmt.Fprintf(body, "CC: %s\r\n", svc.joinAddresses(msg.Cc))
	_, _ = fmt.Fprintf(body, "BCC: %s\r\n", svc.joinAddresses(msg.Bcc))

	altW := multipart.NewWriter(body)
	defer altW.Close()

	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative\r\n")
	_, _ = fmt.Fprintf(body, "Content-Type: boundary=%s\r\n", altW.Boundary())
	_, _ = fmt.Fprint(body, "\r\n")

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain"}})
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "creating text/plain part"))
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.TemplateName != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html"}})
		if err != nil {
			log.Fatalf("%+v", errors.Wrap(err, "creating text/html part"))
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}

	if !svc.disableOutput {
		log.Println(body.String())
	}
}

func (svc consoleService) joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock sends synchronously and keeps quiet; tests inspect
// SentMessages.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	return &consoleServiceMock{
		consoleService: consoleService{
			conf:             conf,
			defaultFromEmail: conf.DefaultFromEmail,
			subjPrefix:       "[" + conf.AppName + "] ",
			disableOutput:    true,
		},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}

// ClearSentMessages resets the test inbox.
func ClearSentMessages() {
	mu.Lock()
	SentMessages = SentMessages[:0]
	mu.Unlock()
}
