package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testSettings(t *testing.T, s Settings) {
	t.Helper()

	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Error("expected ErrNotFound, got: ", err)
	}

	if err := s.Save("cfg", []byte("one")); err != nil {
		t.Fatal("save error: ", err)
	}

	if err := s.Save("cfg", []byte("two")); err != nil {
		t.Fatal("save error: ", err)
	}

	v, err := s.Load("cfg")
	if err != nil {
		t.Fatal("load error: ", err)
	}

	if string(v) != "two" {
		t.Error("expected two, got: ", string(v))
	}
}

func TestMemory(t *testing.T) {
	testSettings(t, NewMemory())
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := NewBolt(path)
	if err != nil {
		t.Fatal("error opening bolt: ", err)
	}

	testSettings(t, s)
	s.Close()

	// reopen, data must survive
	s, err = NewBolt(path)
	if err != nil {
		t.Fatal("error reopening bolt: ", err)
	}
	defer s.Close()

	v, err := s.Load("cfg")
	if err != nil || string(v) != "two" {
		t.Errorf("expected two after reopen, got %q, %v", v, err)
	}
}

func TestSqlite(t *testing.T) {
	s, err := Open(TypeSqlite, t.TempDir())
	if err != nil {
		t.Fatal("error opening sqlite: ", err)
	}
	defer s.Close()

	testSettings(t, s)
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("etcd", t.TempDir()); err == nil {
		t.Error("expected error for unknown type")
	}
}
