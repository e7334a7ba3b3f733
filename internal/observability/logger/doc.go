// Package logger expone un logger Zap singleton con scoping por contexto.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Scoping: cada request lleva un logger con request_id (y user_id si aplica)
//     que viaja en el context.Context hasta el cliente RPC y el saga runner.
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON.
//   - Archivo opcional con rotación (lumberjack) cuando Config.File no está vacío.
//
// Inicialización (una vez en cmd/gateway):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En coordinator/rpc:
//
//	log := logger.From(ctx)
//	log.Info("contribution.create started", logger.UserID(id))
package logger
