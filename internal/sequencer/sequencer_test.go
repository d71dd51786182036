package sequencer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/recurra/internal/sequencer"
	"github.com/smallbiznis/recurra/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestRunSerializesOperations(t *testing.T) {
	seq := sequencer.New(sequencer.Params{DB: testutil.NewDB(t), Log: zaptest.NewLogger(t)})

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := seq.Run(context.Background(), "test.serial", func(tx *gorm.DB) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestRunRollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	seq := sequencer.New(sequencer.Params{DB: db, Log: zaptest.NewLogger(t)})
	require.NoError(t, db.Exec(`CREATE TABLE markers (id INTEGER PRIMARY KEY)`).Error)

	failed := errors.New("abort")
	err := seq.Run(context.Background(), "test.rollback", func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO markers (id) VALUES (1)`).Error; err != nil {
			return err
		}
		return failed
	})
	assert.ErrorIs(t, err, failed)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM markers`).Scan(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, seq.Run(context.Background(), "test.commit", func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO markers (id) VALUES (2)`).Error
	}))
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM markers`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNewLockerWithoutRedis(t *testing.T) {
	assert.Nil(t, sequencer.NewLocker(nil))
}
