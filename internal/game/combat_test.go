/*
Package game
File: combat_test.go
Description: Damage pipeline arithmetic.
*/

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDamageShieldFirst(t *testing.T) {
	// Hull 100/100, shield 50/50, three shots of 30.
	res := ApplyDamage(100, 50, 30)
	assert.Equal(t, 100.0, res.HullAfter)
	assert.Equal(t, 20.0, res.ShieldAfter)
	assert.True(t, res.ShieldHit)

	res = ApplyDamage(res.HullAfter, res.ShieldAfter, 30)
	assert.Equal(t, 90.0, res.HullAfter)
	assert.Equal(t, 0.0, res.ShieldAfter)
	assert.True(t, res.ShieldHit, "partial absorption still reads as a shield hit")

	res = ApplyDamage(res.HullAfter, res.ShieldAfter, 30)
	assert.Equal(t, 60.0, res.HullAfter)
	assert.Equal(t, 0.0, res.ShieldAfter)
	assert.False(t, res.ShieldHit)
}

func TestApplyDamageHullFloorsAtZero(t *testing.T) {
	res := ApplyDamage(10, 0, 500)
	assert.Equal(t, 0.0, res.HullAfter)
	assert.Equal(t, 0.0, res.ShieldAfter)
	assert.False(t, res.ShieldHit)
}

func TestApplyDamageExactShieldBreak(t *testing.T) {
	res := ApplyDamage(100, 30, 30)
	assert.Equal(t, 100.0, res.HullAfter)
	assert.Equal(t, 0.0, res.ShieldAfter)
	assert.True(t, res.ShieldHit)
}

func TestApplyDamageIgnoresNegative(t *testing.T) {
	res := ApplyDamage(80, 40, -5)
	assert.Equal(t, 80.0, res.HullAfter)
	assert.Equal(t, 40.0, res.ShieldAfter)
	assert.False(t, res.ShieldHit)
}
