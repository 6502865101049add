package goCartes_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/MrEthical07/goCartes/session"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds a client keeping its session in Redis.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goCartes.DefaultConfig()
	cfg.API.BaseURL = "https://cartes.example.org"
	cfg.API.Profile = goCartes.ProfileProduction

	client, err := goCartes.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	if err != nil {
		return
	}
	defer client.Close()
}

// ExampleClient_Login shows how callers branch on error kinds.
func ExampleClient_Login() {
	client, _ := goCartes.New().
		WithStorage(session.NewFileStorage(os.ExpandEnv("$HOME/.cartes/session.json"))).
		Build()

	_, err := client.Login(context.Background(), "awa", "secret")
	switch {
	case err == nil:
	case errors.Is(err, goCartes.ErrInvalidCredentials), errors.Is(err, goCartes.ErrAccountDisabled):
		fmt.Println(goCartes.UserMessage(err))
	case errors.Is(err, goCartes.ErrNetwork):
		// retry later
	}
}

// ExampleClient_Subscribe returns the operator to the login screen when the
// session ends.
func ExampleClient_Subscribe() {
	var client *goCartes.Client
	unsubscribe := client.Subscribe(func(ev goCartes.Event) {
		if ev.Type == goCartes.EventSessionExpired {
			fmt.Println("session terminée:", ev.Reason)
		}
	})
	defer unsubscribe()
}

// ExampleTemplateFileName names the downloaded import workbook.
func ExampleTemplateFileName() {
	fmt.Println(goCartes.TemplateFileName(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	// Output: modele-import-cartes-2024-03-09.xlsx
}
