//go:build integration

package repository

import (
	"errors"
	"testing"

	"github.com/fraudguard/fraudguard/internal/model"
	"github.com/fraudguard/fraudguard/internal/testutil"
)

func TestIntegrationUser_UpsertKeepsAbsentFields(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)
	id := testutil.UniqueID("user")

	created, err := repo.UpsertUser(ctx, id, model.UserProfile{
		Email:     testutil.Ptr("a@example.com"),
		FirstName: testutil.Ptr("Ada"),
		Raw:       []byte(`{"id":"x"}`),
	})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if created.ExternalID != id || *created.Email != "a@example.com" {
		t.Fatalf("unexpected user: %+v", created)
	}

	updated, err := repo.UpsertUser(ctx, id, model.UserProfile{LastName: testutil.Ptr("Lovelace")})
	if err != nil {
		t.Fatalf("second UpsertUser() error = %v", err)
	}
	if updated.Email == nil || *updated.Email != "a@example.com" {
		t.Errorf("email should be kept, got %v", updated.Email)
	}
	if updated.FirstName == nil || *updated.FirstName != "Ada" {
		t.Errorf("first name should be kept, got %v", updated.FirstName)
	}
	if updated.LastName == nil || *updated.LastName != "Lovelace" {
		t.Errorf("last name should be set, got %v", updated.LastName)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("created_at changed on update")
	}
}

func TestIntegrationUser_CreateIfAbsentDoesNotOverwrite(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)
	id := testutil.UniqueID("user")

	if _, err := repo.UpsertUser(ctx, id, model.UserProfile{Email: testutil.Ptr("synced@example.com")}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	got, err := repo.CreateUserIfAbsent(ctx, id, model.UserProfile{Email: testutil.Ptr("hint@example.com")})
	if err != nil {
		t.Fatalf("CreateUserIfAbsent() error = %v", err)
	}
	if *got.Email != "synced@example.com" {
		t.Errorf("email = %q, want synced value", *got.Email)
	}
}

func TestIntegrationUser_Delete(t *testing.T) {
	ctx, repo := newRepositoryTestEnv(t)
	id := testutil.UniqueID("user")

	if _, err := repo.UpsertUser(ctx, id, model.UserProfile{}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if err := repo.DeleteUser(ctx, id); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := repo.GetUserByExternalID(ctx, id); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUserByExternalID() error = %v, want ErrUserNotFound", err)
	}

	// Deleting again is not an error.
	if err := repo.DeleteUser(ctx, id); err != nil {
		t.Errorf("second DeleteUser() error = %v", err)
	}
}
