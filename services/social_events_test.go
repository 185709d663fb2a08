package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"joinmatch/models"
)

func TestTeamJoinedAndLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader, player := f.user(t), f.user(t)
	team := f.team(t, leader)
	conv, err := f.conversations.GetOrCreateForTeam(ctx, team.ID)
	require.NoError(t, err)

	sent, err := f.events.TeamJoined(ctx, team.ID, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	got, err := f.conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.HasParticipant(player.ID))
	joined := f.notificationsOf(t, leader.ID, models.NotifyTeamJoin)
	require.Len(t, joined, 1)
	assert.Contains(t, joined[0].Message, player.Name)

	sent, err = f.events.TeamLeft(ctx, team.ID, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	got, err = f.conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.HasParticipant(player.ID))
	assert.Len(t, f.notificationsOf(t, leader.ID, models.NotifyTeamLeave), 1)

	// лидер не получает уведомление о собственных действиях
	sent, err = f.events.TeamJoined(ctx, team.ID, leader.ID)
	require.NoError(t, err)
	assert.Zero(t, sent)

	_, err = f.events.TeamJoined(ctx, 999, player.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventJoinedWithoutConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer, player := f.user(t), f.user(t)
	event := f.event(t, organizer)

	sent, err := f.events.EventJoined(ctx, event.ID, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.notificationsOf(t, organizer.ID, models.NotifyEventJoin), 1)

	conv, err := f.conversations.FindForEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, conv)

	sent, err = f.events.EventLeft(ctx, event.ID, player.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.notificationsOf(t, organizer.ID, models.NotifyEventLeave), 1)
}

func TestCancellationNotifiesEveryoneButActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader, m1, m2 := f.user(t), f.user(t), f.user(t)
	team := f.team(t, leader, m1, m2)

	sent, err := f.events.TeamCancelled(ctx, team.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, f.notificationsOf(t, m1.ID, models.NotifyTeamCancelled), 1)
	assert.Len(t, f.notificationsOf(t, m2.ID, models.NotifyTeamCancelled), 1)
	assert.Empty(t, f.notificationsOf(t, leader.ID, models.NotifyTeamCancelled))

	organizer, a1 := f.user(t), f.user(t)
	event := f.event(t, organizer, a1)
	sent, err = f.events.EventCancelled(ctx, event.ID, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.notificationsOf(t, organizer.ID, models.NotifyEventCancelled), 1)
}

func TestCommentsAndReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author, fan := f.user(t), f.user(t)

	sent, err := f.events.PostCommented(ctx, author.ID, fan.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	sent, err = f.events.PostCommented(ctx, author.ID, author.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = f.events.CommentReplied(ctx, author.ID, fan.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	sent, err = f.events.CommentReplied(ctx, fan.ID, fan.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = f.events.ContentReacted(ctx, author.ID, fan.ID, ContentPost, 1, "fire")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	sent, err = f.events.ContentReacted(ctx, author.ID, fan.ID, ContentComment, 2, "like")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	sent, err = f.events.ContentReacted(ctx, author.ID, author.ID, ContentComment, 2, "like")
	require.NoError(t, err)
	assert.Zero(t, sent)
	_, err = f.events.ContentReacted(ctx, author.ID, fan.ID, "photo", 3, "like")
	assert.ErrorIs(t, err, ErrInvalidOperation)

	assert.Len(t, f.notificationsOf(t, author.ID, models.NotifyPostComment), 1)
	assert.Len(t, f.notificationsOf(t, author.ID, models.NotifyCommentReply), 1)
	assert.Len(t, f.notificationsOf(t, author.ID, models.NotifyPostReaction), 1)
	assert.Len(t, f.notificationsOf(t, author.ID, models.NotifyCommentReaction), 1)
	assert.Empty(t, f.notificationsOf(t, fan.ID, models.NotifyCommentReply))
}
