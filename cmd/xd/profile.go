package main

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/alfredjeanlab/crossdock/internal/model"
)

// Profile is the operator state kept between invocations.
type Profile struct {
	URL       string     `toml:"url,omitempty"`
	GRPCAddr  string     `toml:"grpc_addr,omitempty"`
	Token     string     `toml:"token,omitempty"`
	NATSURL   string     `toml:"nats_url,omitempty"`
	Identity  string     `toml:"identity,omitempty"`
	Site      model.Site `toml:"site,omitempty"`
	SessionID string     `toml:"session_id,omitempty"`
}

var errNotLoggedIn = errors.New("not logged in (run: xd login <identity> --site <site>)")

// profilePath honors CROSSDOCK_PROFILE, then ~/.local/state/crossdock.
func profilePath() (string, error) {
	if p := os.Getenv("CROSSDOCK_PROFILE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "crossdock", "profile.toml"), nil
}

func loadProfile(path string) (Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return Profile{}, nil
		}
		return Profile{}, err
	}
	return p, nil
}

func saveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// updateProfile loads the stored profile, applies fn and writes it back.
func updateProfile(fn func(p *Profile)) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	p, err := loadProfile(path)
	if err != nil {
		return err
	}
	fn(&p)
	return saveProfile(path, p)
}

var (
	profileOnce   sync.Once
	cachedProfile Profile
)

// activeProfile returns the stored profile, loaded once per process. A
// missing or unreadable profile yields the zero value.
func activeProfile() Profile {
	profileOnce.Do(func() {
		path, err := profilePath()
		if err != nil {
			return
		}
		cachedProfile, _ = loadProfile(path)
	})
	return cachedProfile
}

func requireSession() (string, error) {
	if sessionID == "" {
		return "", errNotLoggedIn
	}
	return sessionID, nil
}
