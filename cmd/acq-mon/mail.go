// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"errors"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
)

var errMissingCredentials = errors.New("missing mail credentials")

type mailer interface {
	Send(subject, body string) error
}

type smtpMailer struct {
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string
}

// newMailer returns a mailer configured from the environment.
// Recipients from MAIL_TGTS are appended to to.
func newMailer(to []string) *smtpMailer {
	tgts := append([]string(nil), to...)
	for _, tgt := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		tgts = append(tgts, tgt)
	}

	return &smtpMailer{
		usr:  os.Getenv("MAIL_USERNAME"),
		pwd:  os.Getenv("MAIL_PASSWORD"),
		srv:  os.Getenv("MAIL_SERVER"),
		port: atoi(os.Getenv("MAIL_PORT")),
		tgts: tgts,
	}
}

func (m *smtpMailer) Send(subject, body string) error {
	if m.usr == "" || m.pwd == "" ||
		m.srv == "" || m.port == 0 ||
		len(m.tgts) == 0 {
		return errMissingCredentials
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
