package gofat32

import (
	"errors"
	"testing"

	"github.com/aligator/gofat32/blockdev"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillFAT marks the clusters from..to (inclusive) as end of chain.
func fillFAT(dev *blockdev.Memory, v *Volume, from, to uint32) {
	for c := from; c <= to; c++ {
		setFAT(dev, v, c, uint32(fatEOC))
	}
}

func TestVolume_firstFree(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(dev *blockdev.Memory, v *Volume)
		want    uint32
		wantErr error
	}{
		{
			name: "cluster 2 free",
			prepare: func(dev *blockdev.Memory, v *Volume) {
				setFAT(dev, v, 2, 0)
			},
			want: 2,
		},
		{
			name:    "only the root directory used",
			prepare: func(dev *blockdev.Memory, v *Volume) {},
			want:    3,
		},
		{
			name: "gap in the middle",
			prepare: func(dev *blockdev.Memory, v *Volume) {
				fillFAT(dev, v, 3, 50)
				fillFAT(dev, v, 52, 127)
			},
			want: 51,
		},
		{
			name: "full",
			prepare: func(dev *blockdev.Memory, v *Volume) {
				fillFAT(dev, v, 3, 127)
			},
			wantErr: ErrNoFreeClusters,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := format(t, smallLayout())
			v := mount(t, dev)
			tt.prepare(dev, v)

			v.fatLock.Lock()
			got, err := v.firstFree()
			v.fatLock.Unlock()

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Volume.firstFree() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Volume.firstFree() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolume_nextFreeAfter(t *testing.T) {
	l := smallLayout()
	l.fatSize = 2
	l.sectors = 300

	t.Run("searches the following sectors", func(t *testing.T) {
		dev := format(t, l)
		v := mount(t, dev)
		fillFAT(dev, v, 3, 200)

		got, err := v.nextFreeAfter(10)
		require.NoError(t, err)
		assert.Equal(t, uint32(201), got)
		assert.True(t, v.alloc.cacheValid)
		assert.Equal(t, uint32(1), v.alloc.cacheSector)
	})

	t.Run("wraps around", func(t *testing.T) {
		dev := format(t, l)
		v := mount(t, dev)
		fillFAT(dev, v, 3, v.geo.MaxCluster())
		setFAT(dev, v, 7, 0)

		got, err := v.nextFreeAfter(100)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), got)
	})

	t.Run("nothing free", func(t *testing.T) {
		dev := format(t, l)
		v := mount(t, dev)
		fillFAT(dev, v, 3, v.geo.MaxCluster())

		_, err := v.nextFreeAfter(100)
		assert.ErrorIs(t, err, ErrNoFreeClusters)
	})
}

func TestVolume_nextFreeAfter_readsOneSector(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	l := smallLayout()
	l.fatSize = 2
	l.sectors = 300
	dev := format(t, l)
	v := mount(t, dev)
	fillFAT(dev, v, 3, 127)

	mock := blockdev.NewMockDevice(ctrl)
	mock.EXPECT().ReadSectors(gomock.Any(), uint32(33)).DoAndReturn(dev.ReadSectors).Times(1)
	v.dev = mock

	got, err := v.nextFreeAfter(127)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), got)
}

func TestVolume_rebuildCache_shortRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	v := mount(t, format(t, smallLayout()))
	mock := blockdev.NewMockDevice(ctrl)
	mock.EXPECT().ReadSectors(gomock.Any(), uint32(32)).Return(100, nil)
	v.dev = mock

	err := v.rebuildCache(0)
	assert.ErrorIs(t, err, ErrIO)
	assert.False(t, v.alloc.cacheValid)
}

func TestVolume_allocate(t *testing.T) {
	dev := format(t, smallLayout())
	v := mount(t, dev)
	require.Equal(t, uint32(3), v.alloc.nextFree)

	v.fatLock.Lock()
	c, err := v.allocate()
	v.fatLock.Unlock()
	require.NoError(t, err)

	assert.Equal(t, uint32(3), c)
	assert.Equal(t, uint32(fatEOC), fatValue(dev, v, 0, 3))
	assert.Equal(t, uint32(fatEOC), fatValue(dev, v, 1, 3))
	assert.Equal(t, uint32(4), v.alloc.nextFree)
	assert.Equal(t, uint32(124), v.FreeClusters())
}

func TestVolume_allocate_outdatedHint(t *testing.T) {
	dev := format(t, smallLayout())
	v := mount(t, dev)
	fillFAT(dev, v, 3, 9)

	v.fatLock.Lock()
	c, err := v.allocate()
	v.fatLock.Unlock()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), c)
	assert.Equal(t, uint32(11), v.alloc.nextFree)
}

func TestVolume_allocClusters(t *testing.T) {
	t.Run("exhaustion", func(t *testing.T) {
		v := mount(t, format(t, smallLayout()))

		clusters, _, err := v.allocClusters(125)
		require.NoError(t, err)
		assert.Len(t, clusters, 125)
		assert.Equal(t, uint32(0), v.FreeClusters())
		assert.Equal(t, uint32(noFreeCluster), v.alloc.nextFree)

		_, _, err = v.allocClusters(1)
		assert.ErrorIs(t, err, ErrNoFreeClusters)
	})

	t.Run("rollback", func(t *testing.T) {
		dev := format(t, smallLayout())
		v := mount(t, dev)
		before := v.alloc.snapshot()

		_, _, err := v.allocClusters(200)
		require.ErrorIs(t, err, ErrNoFreeClusters)

		assert.Equal(t, uint32(125), v.FreeClusters())
		assert.Equal(t, before.nextFree, v.alloc.nextFree)
		for c := uint32(3); c <= v.geo.MaxCluster(); c++ {
			if got := fatValue(dev, v, 0, c); got != 0 {
				t.Fatalf("cluster %d = %#x after rollback, want free", c, got)
			}
		}
	})

	t.Run("zero clusters", func(t *testing.T) {
		v := mount(t, format(t, smallLayout()))
		clusters, _, err := v.allocClusters(0)
		require.NoError(t, err)
		assert.Empty(t, clusters)
		assert.Equal(t, uint32(125), v.FreeClusters())
	})
}
