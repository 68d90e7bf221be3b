package delivery

import (
	"context"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/usecase"
)

type fakeConnectionUsecase struct {
	url          string
	conn         *domain.MailConnection
	err          error
	disconnected []string
	callbackArgs []string
}

func (f *fakeConnectionUsecase) ConnectURL(ctx context.Context, userID string) (string, error) {
	return f.url, f.err
}

func (f *fakeConnectionUsecase) HandleCallback(ctx context.Context, code, state, errReason string) (*domain.MailConnection, error) {
	f.callbackArgs = []string{code, state, errReason}
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func (f *fakeConnectionUsecase) Disconnect(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.disconnected = append(f.disconnected, userID)
	return nil
}

func (f *fakeConnectionUsecase) Status(ctx context.Context, userID string) (*domain.MailConnection, error) {
	return f.conn, f.err
}

func (f *fakeConnectionUsecase) RenewWatches(ctx context.Context) (int, error) {
	return 0, nil
}

type syncCall struct {
	userID string
	mode   domain.SyncMode
	days   int
}

type fakeSyncUsecase struct {
	result  *domain.SyncResult
	stats   *domain.ShoppingStats
	err     error
	pushErr error
	calls   []syncCall
	pushes  []domain.PushNotification
}

func (f *fakeSyncUsecase) Sync(ctx context.Context, userID string, mode domain.SyncMode, days int) (*domain.SyncResult, error) {
	f.calls = append(f.calls, syncCall{userID: userID, mode: mode, days: days})
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSyncUsecase) HandlePush(ctx context.Context, n domain.PushNotification) error {
	f.pushes = append(f.pushes, n)
	return f.pushErr
}

func (f *fakeSyncUsecase) Stats(ctx context.Context, userID string, days int) (*domain.ShoppingStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func (f *fakeSyncUsecase) SetJobQueue(queue usecase.JobQueue) {}
