package kvbackend

import (
	wkproto "github.com/WuKongIM/WuKongIMGoProto"
	"github.com/pkg/errors"
)

type CmdType uint8

const (
	CmdUnknown CmdType = iota
	// CmdSet 写入键值
	CmdSet
	// CmdDelete 删除键
	CmdDelete
)

func (c CmdType) String() string {
	switch c {
	case CmdSet:
		return "CmdSet"
	case CmdDelete:
		return "CmdDelete"
	default:
		return "CmdUnknown"
	}
}

// Command 客户端请求里携带的键值操作
type Command struct {
	Type  CmdType
	Key   string
	Value []byte
}

func SetCommand(key string, value []byte) Command {
	return Command{Type: CmdSet, Key: key, Value: value}
}

func DeleteCommand(key string) Command {
	return Command{Type: CmdDelete, Key: key}
}

func (c Command) Encode() []byte {
	enc := wkproto.NewEncoder()
	defer enc.End()
	enc.WriteUint8(uint8(c.Type))
	enc.WriteString(c.Key)
	enc.WriteUint32(uint32(len(c.Value)))
	enc.WriteBytes(c.Value)
	return append([]byte(nil), enc.Bytes()...)
}

func (c *Command) Decode(data []byte) error {
	dec := wkproto.NewDecoder(data)
	cmdType, err := dec.Uint8()
	if err != nil {
		return errors.Wrap(err, "decode command type")
	}
	c.Type = CmdType(cmdType)
	if c.Type != CmdSet && c.Type != CmdDelete {
		return errors.Wrapf(ErrUnknownCommand, "type %d", cmdType)
	}
	if c.Key, err = dec.String(); err != nil {
		return errors.Wrap(err, "decode command key")
	}
	if c.Key == "" {
		return ErrEmptyKey
	}
	valueLen, err := dec.Uint32()
	if err != nil {
		return errors.Wrap(err, "decode command value length")
	}
	if valueLen > 0 {
		value, err := dec.Bytes(int(valueLen))
		if err != nil {
			return errors.Wrap(err, "decode command value")
		}
		c.Value = append([]byte(nil), value...)
	}
	return nil
}

// DecodeCommand 解码客户端请求中的操作
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	err := c.Decode(data)
	return c, err
}
