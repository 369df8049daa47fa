package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
	"github.com/yungbote/teamchat-backend/internal/realtime/bus"
	"github.com/yungbote/teamchat-backend/internal/services/auth"
	chatsvc "github.com/yungbote/teamchat-backend/internal/services/chat"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

type Services struct {
	Directory directory.Directory
	Auth      *auth.JWTProvider
	Resolver  chatsvc.Resolver
	Rooms     chatsvc.RoomStore
	Ledger    chatsvc.Ledger
	Notifier  chatsvc.Notifier
	Chat      chatsvc.ChatService
}

func wireServices(
	theDB *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	hub *realtime.Hub,
	envelopeBus bus.Bus,
	store attachments.Store,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...")

	dir := directory.New(log, reposet.User, reposet.Team)
	authService, err := auth.NewJWTProvider(log, dir, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	if err != nil {
		return Services{}, err
	}

	tx := db.NewGormTxRunner(theDB)
	resolver := chatsvc.NewResolver(log, dir, reposet.Room)
	rooms := chatsvc.NewRoomStore(log, reposet.Room, reposet.Membership, dir, tx, metrics, chatsvc.RoomStoreConfig{
		GeneralRoomName: cfg.GeneralRoomName,
	})
	ledger := chatsvc.NewLedger(log, reposet.Message, reposet.Attachment, reposet.Membership, store, tx)

	var emitter chatsvc.EnvelopeEmitter = &chatsvc.HubEmitter{Hub: hub}
	if envelopeBus != nil {
		emitter = &chatsvc.RedisEmitter{Bus: envelopeBus, Fallback: hub}
	}
	notifier := chatsvc.NewNotifier(log, emitter)

	return Services{
		Directory: dir,
		Auth:      authService,
		Resolver:  resolver,
		Rooms:     rooms,
		Ledger:    ledger,
		Notifier:  notifier,
		Chat:      chatsvc.NewChatService(log, resolver, rooms, ledger, dir, notifier, metrics),
	}, nil
}
