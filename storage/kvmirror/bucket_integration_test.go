//go:build integration

package kvmirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/recordcache/errors"
	"github.com/c360/recordcache/natsclient"
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/storage"
)

// BucketSuite shares one NATS container across the bucket tests
type BucketSuite struct {
	suite.Suite
	testClient *natsclient.TestClient
	bucket     *BucketStore
}

func (s *BucketSuite) SetupSuite() {
	s.testClient = natsclient.NewTestClient(s.T())
}

// SetupTest gives every test an empty bucket
func (s *BucketSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.testClient.Client.WaitForConnection(ctx))

	bucket, err := OpenBucket(ctx, s.testClient.Client, "records")
	s.Require().NoError(err)
	keys, err := bucket.List(ctx)
	s.Require().NoError(err)
	for _, k := range keys {
		s.Require().NoError(bucket.Delete(ctx, k))
	}
	s.bucket = bucket
}

func TestBucketSuite(t *testing.T) {
	suite.Run(t, new(BucketSuite))
}

func (s *BucketSuite) TestGetMissingKey() {
	_, err := s.bucket.Get(context.Background(), storage.EncodeKey("absent"))
	s.ErrorIs(err, storage.ErrNotFound)
	s.True(errors.IsInvalid(err))
}

func (s *BucketSuite) TestMirrorRoundTrip() {
	ctx := context.Background()
	m := newTestMirror(s.T(), s.bucket)
	key := record.KeyFor(record.KindRecord, oppID)

	m.Save(key, opportunity())
	s.Require().Eventually(func() bool {
		keys, err := s.bucket.List(ctx)
		return err == nil && len(keys) == 1
	}, 5*time.Second, 10*time.Millisecond)

	var loaded []string
	s.Require().NoError(m.Load(ctx, func(k string, r *record.Record) error {
		loaded = append(loaded, k)
		s.Equal("Deal", r.Fields["Name"].Value)
		return nil
	}))
	s.Equal([]string{key}, loaded)

	m.Delete(key)
	s.Require().Eventually(func() bool {
		keys, err := s.bucket.List(ctx)
		return err == nil && len(keys) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
