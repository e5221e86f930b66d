package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/Dosada05/tournament-payouts/config"
	"github.com/shopspring/decimal"
)

type EmailService struct {
	cfg *config.Config
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{cfg: cfg}
}

func (s *EmailService) SendEmail(to []string, subject string, body string) error {
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)

	msg := []byte("To: " + to[0] + "\r\n" +
		"From: " + s.cfg.SMTPFrom + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	tlsconfig := &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         s.cfg.SMTPHost,
	}

	var client *smtp.Client
	if s.cfg.SMTPPort == 465 {
		// Прямое TLS-соединение (обычно порт 465)
		conn, err := tls.Dial("tcp", addr, tlsconfig)
		if err != nil {
			return fmt.Errorf("ошибка TLS соединения: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("ошибка создания SMTP клиента: %w", err)
		}
	} else {
		// STARTTLS (обычно порт 587)
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("ошибка соединения SMTP: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsconfig); err != nil {
			client.Close()
			return fmt.Errorf("ошибка команды STARTTLS: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("ошибка аутентификации SMTP: %w", err)
	}

	if err := client.Mail(s.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("ошибка MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("ошибка RCPT TO: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("ошибка команды DATA: %w", err)
	}

	_, err = w.Write(msg)
	if err != nil {
		return fmt.Errorf("ошибка записи сообщения: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("ошибка закрытия DATA: %w", err)
	}

	return nil
}

var (
	participantJoinedTmpl = template.Must(template.New("participant_joined").Parse(
		`<p>Игрок <b>{{.PlayerName}}</b> зарегистрировался в вашем турнире «{{.TournamentName}}».</p>`))
	prizePaidTmpl = template.Must(template.New("prize_paid").Parse(
		`<p>Поздравляем! Вам выплачен приз <b>{{.Amount}}</b> за турнир «{{.TournamentName}}».</p>`))
)

func (s *EmailService) generateBody(t *template.Template, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", fmt.Errorf("ошибка выполнения шаблона %s: %w", t.Name(), err)
	}
	return body.String(), nil
}

func (s *EmailService) SendParticipantJoined(organizerEmail, tournamentName, playerName string) error {
	subject := fmt.Sprintf("Новый участник в турнире «%s»", tournamentName)
	data := struct {
		TournamentName string
		PlayerName     string
	}{
		TournamentName: tournamentName,
		PlayerName:     playerName,
	}
	htmlBody, err := s.generateBody(participantJoinedTmpl, data)
	if err != nil {
		return fmt.Errorf("ошибка генерации письма о новом участнике: %w", err)
	}
	return s.SendEmail([]string{organizerEmail}, subject, htmlBody)
}

func (s *EmailService) SendPrizePaid(playerEmail, tournamentName string, amount decimal.Decimal) error {
	subject := fmt.Sprintf("Приз за турнир «%s» выплачен", tournamentName)
	data := struct {
		TournamentName string
		Amount         string
	}{
		TournamentName: tournamentName,
		Amount:         amount.StringFixed(2),
	}
	htmlBody, err := s.generateBody(prizePaidTmpl, data)
	if err != nil {
		return fmt.Errorf("ошибка генерации письма о выплате приза: %w", err)
	}
	return s.SendEmail([]string{playerEmail}, subject, htmlBody)
}
