package service

import "lorad/internal/session"

func errModelNotLoaded() error {
	return &session.Error{Kind: session.KindModelNotLoaded, Msg: "no model loaded"}
}

func errBusy() error {
	return &session.Error{Kind: session.KindBusy, Msg: "server busy, retry later"}
}
