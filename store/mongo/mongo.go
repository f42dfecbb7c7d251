// Package mongo is an account.Store backed by a MongoDB collection.
//
// Conditional updates map onto a single UpdateOne whose filter carries the
// patch preconditions, so MongoDB's per-document atomicity provides the
// compare-and-set the engine depends on.
package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/giall/hecate/account"
)

const accountCollection = "accounts"

type document struct {
	ID                string    `bson:"_id"`
	Username          string    `bson:"username"`
	UsernameKey       string    `bson:"username_key"`
	Email             string    `bson:"email"`
	CredentialHash    string    `bson:"credential_hash"`
	Verified          bool      `bson:"verified"`
	Sessions          []string  `bson:"sessions"`
	MagicLoginAllowed bool      `bson:"magic_login_allowed"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toDocument(a *account.Account) document {
	sessions := a.Sessions
	if sessions == nil {
		sessions = []string{}
	}
	return document{
		ID:                a.ID,
		Username:          a.Username,
		UsernameKey:       strings.ToLower(a.Username),
		Email:             account.NormalizeEmail(a.Email),
		CredentialHash:    a.CredentialHash,
		Verified:          a.Verified,
		Sessions:          sessions,
		MagicLoginAllowed: a.MagicLoginAllowed,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func (d document) account() *account.Account {
	sessions := d.Sessions
	if sessions == nil {
		sessions = []string{}
	}
	return &account.Account{
		ID:                d.ID,
		Username:          d.Username,
		Email:             d.Email,
		CredentialHash:    d.CredentialHash,
		Verified:          d.Verified,
		Sessions:          sessions,
		MagicLoginAllowed: d.MagicLoginAllowed,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// Store implements account.Store over one collection.
type Store struct {
	collection *mongo.Collection
	now        func() time.Time
}

// New returns a Store on db and ensures the unique indexes exist.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	collection := db.Collection(accountCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, oops.Code("INDEX_CREATE_FAILED").With("collection", accountCollection).Wrap(err)
	}

	return &Store{collection: collection, now: time.Now}, nil
}

func fieldFilter(field account.Field, value string) (bson.M, error) {
	switch field {
	case account.FieldEmail:
		return bson.M{"email": account.NormalizeEmail(value)}, nil
	case account.FieldUsername:
		return bson.M{"username_key": strings.ToLower(value)}, nil
	default:
		return nil, oops.Code("UNKNOWN_FIELD").Errorf("unknown lookup field %q", field)
	}
}

func (s *Store) FindByField(ctx context.Context, field account.Field, value string) (*account.Account, error) {
	filter, err := fieldFilter(field, value)
	if err != nil {
		return nil, err
	}

	var doc document
	err = s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("operation", "find account").With("field", string(field)).Wrap(err)
	}
	return doc.account(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "find account").With("account_id", id).Wrap(err)
	}
	return doc.account(), nil
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct.ID == "" {
		acct.ID = account.NewID()
	}
	now := s.now()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Email = account.NormalizeEmail(acct.Email)
	if acct.Sessions == nil {
		acct.Sessions = []string{}
	}

	_, err := s.collection.InsertOne(ctx, toDocument(acct))
	if mongo.IsDuplicateKeyError(err) {
		return account.ErrDuplicate
	}
	if err != nil {
		return oops.With("operation", "create account").Wrap(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) (bool, error) {
	filter := conditionFilter(id, patch.Where)
	update := bson.M{"$set": setFields(patch, s.now())}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if mongo.IsDuplicateKeyError(err) {
		return false, account.ErrDuplicate
	}
	if err != nil {
		return false, oops.With("operation", "update account").With("account_id", id).Wrap(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	if patch.Where.Empty() {
		return false, account.ErrNotFound
	}

	// The filter missed: either the account is gone or a precondition failed.
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, oops.With("operation", "check account").With("account_id", id).Wrap(err)
	}
	if n == 0 {
		return false, account.ErrNotFound
	}
	return false, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return oops.With("operation", "delete account").With("account_id", id).Wrap(err)
	}
	if res.DeletedCount == 0 {
		return account.ErrNotFound
	}
	return nil
}

func conditionFilter(id string, c account.Condition) bson.M {
	filter := bson.M{"_id": id}
	if c.Email != nil {
		filter["email"] = *c.Email
	}
	if c.CredentialHash != nil {
		filter["credential_hash"] = *c.CredentialHash
	}
	if c.Verified != nil {
		filter["verified"] = *c.Verified
	}
	if c.MagicLoginAllowed != nil {
		filter["magic_login_allowed"] = *c.MagicLoginAllowed
	}
	if c.MatchSessions {
		sessions := c.Sessions
		if sessions == nil {
			sessions = []string{}
		}
		// Array equality is exact and ordered.
		filter["sessions"] = sessions
	}
	return filter
}

func setFields(p account.Patch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.Email != nil {
		set["email"] = account.NormalizeEmail(*p.Email)
	}
	if p.CredentialHash != nil {
		set["credential_hash"] = *p.CredentialHash
	}
	if p.Verified != nil {
		set["verified"] = *p.Verified
	}
	if p.MagicLoginAllowed != nil {
		set["magic_login_allowed"] = *p.MagicLoginAllowed
	}
	if p.SetSessions {
		sessions := p.Sessions
		if sessions == nil {
			sessions = []string{}
		}
		set["sessions"] = sessions
	}
	return set
}
