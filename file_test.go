package gofat32

import (
	"encoding/binary"
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testData returns n bytes which differ between sectors and clusters.
func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// writeFile creates a file with the given content and closes it.
func writeFile(t *testing.T, v *Volume, path string, content []byte) {
	t.Helper()
	require.NoError(t, v.CreateFile(path))
	f, err := v.Open(path)
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// twoSectorLayout has clusters of 1024 bytes.
func twoSectorLayout() layout {
	return layout{
		sectorsPerCluster: 2,
		reserved:          32,
		fats:              2,
		fatSize:           1,
		sectors:           290,
	}
}

func TestFile_Read(t *testing.T) {
	content := testData(3000)

	tests := []struct {
		name    string
		bufSize int
	}{
		{name: "small buffer", bufSize: 100},
		{name: "sector buffer", bufSize: 512},
		{name: "odd buffer", bufSize: 700},
		{name: "cluster buffer", bufSize: 1024},
		{name: "whole file", bufSize: 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mount(t, format(t, twoSectorLayout()))
			writeFile(t, v, "DATA.BIN", content)

			f, err := v.Open("DATA.BIN")
			require.NoError(t, err)
			defer f.Close()

			var got []byte
			buf := make([]byte, tt.bufSize)
			for {
				n, err := f.Read(buf)
				got = append(got, buf[:n]...)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
			}
			assert.Equal(t, content, got)
		})
	}
}

func TestFile_Read_emptyBuffer(t *testing.T) {
	v := mount(t, format(t, smallLayout()))
	content := testData(100)
	writeFile(t, v, "A.TXT", content)

	f, err := v.Open("A.TXT")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 10)
	_, err = f.Read(buf)
	require.NoError(t, err)

	n, err := f.Read(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, content[10:20], buf)
}

func TestFile_Read_emptyFile(t *testing.T) {
	v := mount(t, format(t, smallLayout()))
	require.NoError(t, v.CreateFile("EMPTY"))

	f, err := v.Open("EMPTY")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestFile_Close(t *testing.T) {
	v := mount(t, format(t, smallLayout()))
	writeFile(t, v, "A.TXT", testData(10))

	f, err := v.Open("A.TXT")
	require.NoError(t, err)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())

	_, err = f.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Stat()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.Sync(), ErrClosed)

	// A closed handle can be opened again.
	require.NoError(t, v.Drive(0).OpenFile(f, "A.TXT"))
	assert.Equal(t, "A.TXT", f.Name())
	assert.NoError(t, f.Close())
}

func TestDrive_OpenFile(t *testing.T) {
	dev := format(t, smallLayout())
	v := mount(t, dev)
	writeFile(t, v, "A.TXT", testData(10))
	require.NoError(t, v.CreateDirectory("DIR"))
	d := v.Drive(0)

	t.Run("already open", func(t *testing.T) {
		f := &File{}
		require.NoError(t, d.OpenFile(f, "A.TXT"))
		defer f.Close()
		assert.ErrorIs(t, d.OpenFile(f, "A.TXT"), ErrAlreadyOpen)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := d.Open("DIR")
		assert.ErrorIs(t, err, ErrIsDirectory)
		_, err = d.Open("/")
		assert.ErrorIs(t, err, ErrIsDirectory)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := d.Open("B.TXT")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("size beyond the chain", func(t *testing.T) {
		root := clusterBytes(t, dev, v, rootCluster)
		binary.LittleEndian.PutUint32(root[28:], 2000)
		defer binary.LittleEndian.PutUint32(root[28:], 10)

		_, err := d.Open("A.TXT")
		assert.ErrorIs(t, err, ErrCorruptChain)
	})
}

func TestFile_Seek(t *testing.T) {
	v := mount(t, format(t, twoSectorLayout()))
	content := testData(3000)
	writeFile(t, v, "DATA.BIN", content)

	f, err := v.Open("DATA.BIN")
	require.NoError(t, err)
	defer f.Close()

	tests := []struct {
		name    string
		offset  int64
		whence  int
		want    int64
		wantErr error
	}{
		{name: "cluster boundary", offset: 1024, whence: io.SeekStart, want: 1024},
		{name: "forward", offset: 10, whence: io.SeekCurrent, want: 1034},
		{name: "backward", offset: -1024, whence: io.SeekCurrent, want: 10},
		{name: "sector boundary", offset: 512, whence: io.SeekStart, want: 512},
		{name: "from the end", offset: -10, whence: io.SeekEnd, want: 2990},
		{name: "second cluster boundary", offset: 2048, whence: io.SeekStart, want: 2048},
		{name: "start", offset: 0, whence: io.SeekStart, want: 0},
		{name: "end", offset: 0, whence: io.SeekEnd, want: 3000},
		{name: "beyond the end", offset: 3001, whence: io.SeekStart, wantErr: afero.ErrOutOfRange},
		{name: "negative", offset: -1, whence: io.SeekStart, wantErr: afero.ErrOutOfRange},
		{name: "invalid whence", offset: 0, whence: 5, wantErr: syscall.EINVAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Seek(tt.offset, tt.whence)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			buf := make([]byte, 20)
			n, err := f.Read(buf)
			if tt.want == 3000 {
				assert.Equal(t, io.EOF, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, content[tt.want:tt.want+int64(n)], buf[:n])

			// Go back to the sought position for the next relative seek.
			_, err = f.Seek(-int64(n), io.SeekCurrent)
			require.NoError(t, err)
		})
	}
}

func TestFile_ReadAt(t *testing.T) {
	v := mount(t, format(t, twoSectorLayout()))
	content := testData(3000)
	writeFile(t, v, "DATA.BIN", content)

	f, err := v.Open("DATA.BIN")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 100)
	n, err := f.ReadAt(buf, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, content[1000:1100], buf)

	n, err = f.ReadAt(buf, 2950)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, content[2950:], buf[:n])

	_, err = f.ReadAt(buf, 3000)
	assert.Equal(t, io.EOF, err)

	// The cursor did not move.
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, content[:n], buf[:n])
}

func TestFile_Readdir(t *testing.T) {
	v := mount(t, format(t, smallLayout()))
	require.NoError(t, v.CreateDirectory("DIR"))
	for _, name := range []string{"DIR/A.TXT", "DIR/B.TXT", "DIR/C.TXT"} {
		require.NoError(t, v.CreateFile(name))
	}

	dir, err := v.Drive(0).OpenDir("DIR")
	require.NoError(t, err)
	defer dir.Close()

	infos, err := dir.Readdir(2)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "A.TXT", infos[0].Name())

	names, err := dir.Readdirnames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.TXT"}, names)

	_, err = dir.Readdir(2)
	assert.Equal(t, io.EOF, err)

	info, err := dir.Stat()
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "DIR", info.Name())

	_, err = dir.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrIsDirectory)

	f, err := v.Drive(0).Open("DIR/A.TXT")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Readdir(-1)
	assert.ErrorIs(t, err, ErrNotDirectory)
	assert.True(t, errors.Is(err, syscall.ENOTDIR))
}

func TestFile_Stat(t *testing.T) {
	v := mount(t, format(t, smallLayout()))
	writeFile(t, v, "A.TXT", testData(700))

	f, err := v.Open("A.TXT")
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "A.TXT", info.Name())
	assert.Equal(t, int64(700), info.Size())
	assert.False(t, info.IsDir())
	h := info.Sys().(EntryHeader)
	assert.Equal(t, "A       TXT", string(h.Name[:]))
}
