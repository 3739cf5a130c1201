package bucketing

import (
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"finboard/internal/config"
)

// BucketingManager assigns rows to stable partition buckets so wide tables
// (users, activity log) spread across the cluster instead of hot-spotting.
type BucketingManager struct {
	userBuckets     int
	activityBuckets int
	hasherPool      sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		userBuckets:     cfg.Bucketing.UserBuckets,
		activityBuckets: cfg.Bucketing.ActivityBuckets,
	}

	// Pool of hash functions to avoid allocation overhead on hot paths
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetUserBucket returns the consistent bucket for a user (0 to userBuckets-1).
func (bm *BucketingManager) GetUserBucket(userID interface{}) int {
	var idStr string

	switch v := userID.(type) {
	case string:
		idStr = v
	case uuid.UUID:
		idStr = v.String()
	default:
		idStr = fmt.Sprintf("%v", v)
	}

	return bm.getBucket(idStr, bm.userBuckets)
}

// GetActivityBucket returns the bucket for activity log partitioning.
func (bm *BucketingManager) GetActivityBucket(userID string) int {
	return bm.getBucket(userID, bm.activityBuckets)
}

// GetDateBucket returns the UTC date component used in analytics rows.
func (bm *BucketingManager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (bm *BucketingManager) GetUserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) GetActivityBuckets() int {
	return bm.activityBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
