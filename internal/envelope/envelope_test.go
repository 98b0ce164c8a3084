package envelope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

func TestStampAssignsAndAdvancesSeqNum(t *testing.T) {
	idx := int32(7)
	s := NewStamper(123, "user@host", "rev1", &idx, 5)

	env, err := s.Stamp(0)
	require.NoError(t, err)
	assert.Equal(t, int32(5), env.PrivateSeqNum)
	assert.Equal(t, int32(123), env.PrivateOrigin)
	assert.Equal(t, "user@host", env.PrivateIdentity)
	assert.Equal(t, "rev1", env.PrivateRevCode)
	require.NotNil(t, env.SalIndex)
	assert.Equal(t, int32(7), *env.SalIndex)
	assert.Equal(t, env.PrivateSndStamp, env.PrivateEfdStamp)
	assert.Equal(t, env.PrivateSndStamp, env.PrivateKafkaStamp)

	env2, err := s.Stamp(0)
	require.NoError(t, err)
	assert.Greater(t, env2.PrivateSeqNum, env.PrivateSeqNum)
}

func TestStampOmitsIndexForNonIndexedComponent(t *testing.T) {
	s := NewStamper(1, "a@b", "rev1", nil, 1)
	env, err := s.Stamp(0)
	require.NoError(t, err)
	assert.Nil(t, env.SalIndex)
}

func TestStampReservedSeqNumMustMatch(t *testing.T) {
	s := NewStamper(1, "a@b", "rev1", nil, 10)

	env, err := s.Stamp(10)
	require.NoError(t, err)
	assert.Equal(t, int32(10), env.PrivateSeqNum)

	_, err = s.Stamp(999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, salerr.Protocol))
}

func TestWrapIncrementWrapsAtMaxInt32(t *testing.T) {
	s := NewStamper(1, "a@b", "rev1", nil, 1<<31-1)
	env, err := s.Stamp(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1<<31-1), env.PrivateSeqNum)
	assert.Equal(t, int32(1), s.NextSeqNum())
}

func TestAckCodeSets(t *testing.T) {
	assert.True(t, Complete.IsFinal())
	assert.True(t, Complete.IsGood())
	assert.True(t, InProgress.IsGood())
	assert.False(t, InProgress.IsFinal())
	assert.True(t, Failed.IsFinal())
	assert.False(t, Failed.IsGood())
}

func TestCommandAckMatches(t *testing.T) {
	ack := CommandAck{Origin: 1, Identity: "a@b", SeqNum: 42}
	assert.True(t, ack.Matches(1, "a@b", 42))
	assert.False(t, ack.Matches(1, "a@b", 43))
	assert.False(t, ack.Matches(2, "a@b", 42))
}
