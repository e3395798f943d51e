package coreengine

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/oarkflow/coreengine/errs"
)

// RepairSSTable streams a possibly-corrupted SSTable file, recovering
// whatever valid key/value entries parse sequentially before the first
// read or length-sanity failure, then writes a repaired replacement at
// outPath via BuildSSTable. It reports how many entries were recovered.
// Unlike the original format this repairs, there is no AEAD step: entries
// are plain length-prefixed bytes, so recovery is read-validate-reemit
// rather than decrypt-reencrypt.
func RepairSSTable(inPath, outPath string) (recovered int, err error) {
	f, openErr := os.Open(inPath)
	if openErr != nil {
		return 0, errs.IoErrorf("RepairSSTable", openErr)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != sstableMagic {
		return 0, errs.Corruptf("RepairSSTable", "missing or bad magic in %s", inPath)
	}

	if _, err := readUint32At(f); err != nil {
		return 0, errs.Corruptf("RepairSSTable", "truncated entry count: %v", err)
	}
	bloomSize, err := readUint32At(f)
	if err != nil {
		return 0, errs.Corruptf("RepairSSTable", "truncated bloom size: %v", err)
	}
	if bloomSize > sstableMaxFieldLen {
		return 0, errs.Corruptf("RepairSSTable", "bloom blob size exceeds sanity cap")
	}
	if _, err := f.Seek(int64(bloomSize), io.SeekCurrent); err != nil {
		return 0, errs.Corruptf("RepairSSTable", "cannot skip bloom blob: %v", err)
	}

	var entries []*Entry
	for {
		keyLen, err := readUint32At(f)
		if err != nil {
			break
		}
		valueLen, err := readUint32At(f)
		if err != nil {
			break
		}
		if keyLen > sstableMaxFieldLen || (valueLen != tombstoneSentinel && valueLen > sstableMaxFieldLen) {
			break
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(f, key); err != nil {
			break
		}
		deleted := valueLen == tombstoneSentinel
		var value []byte
		if !deleted {
			value = make([]byte, valueLen)
			if _, err := io.ReadFull(f, value); err != nil {
				break
			}
		}
		entries = append(entries, newEntry(key, value, deleted))
	}

	if len(entries) == 0 {
		return 0, errs.Corruptf("RepairSSTable", "no recoverable entries found in %s", inPath)
	}

	if _, err := BuildSSTable(outPath, entries); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

func readUint32At(f *os.File) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
