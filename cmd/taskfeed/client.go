package main

import (
	"errors"

	"github.com/taskfeed/taskfeed/internal/client"
)

// newClient builds an API client from the loaded config.
func newClient() *client.Client {
	return client.New(client.Config{
		BaseURL: cfg.Client.URL,
		UserID:  cfg.Client.UserID,
		Timeout: cfg.Client.RequestTimeout,
	})
}

// requireUser returns a client for commands that act as a user.
func requireUser() (*client.Client, error) {
	if cfg.Client.UserID <= 0 {
		return nil, errors.New("a user id is required (--user, TASKFEED_CLIENT_USER_ID or client.user_id)")
	}
	return newClient(), nil
}
