package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// The scans collection is the append-only ledger. The partial unique
// index is the storage-level guarantee that at most one valid scan can
// ever exist per ticket, regardless of how many gate processes write
// concurrently.
func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"createRule": null,
			"deleteRule": null,
			"fields": [
				{
					"autogeneratePattern": "[a-z0-9]{15}",
					"hidden": false,
					"id": "text3208210256",
					"max": 15,
					"min": 15,
					"name": "id",
					"pattern": "^[a-z0-9]+$",
					"presentable": false,
					"primaryKey": true,
					"required": true,
					"system": true,
					"type": "text"
				},
				{
					"cascadeDelete": false,
					"collectionId": "pbc_2602490748",
					"hidden": false,
					"id": "relation2167166866",
					"maxSelect": 1,
					"minSelect": 0,
					"name": "ticket",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "relation"
				},
				{
					"cascadeDelete": false,
					"collectionId": "pbc_1687431684",
					"hidden": false,
					"id": "relation1001261737",
					"maxSelect": 1,
					"minSelect": 0,
					"name": "event",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "relation"
				},
				{
					"cascadeDelete": false,
					"collectionId": "_pb_users_auth_",
					"hidden": false,
					"id": "relation4113142680",
					"maxSelect": 1,
					"minSelect": 0,
					"name": "scanner",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "relation"
				},
				{
					"hidden": false,
					"id": "select2063623453",
					"maxSelect": 1,
					"name": "outcome",
					"presentable": true,
					"required": true,
					"system": false,
					"type": "select",
					"values": [
						"valid",
						"invalid",
						"duplicate"
					]
				},
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text3065852031",
					"max": 0,
					"min": 0,
					"name": "message",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "bool2662459327",
					"name": "entry_confirmed",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "bool"
				},
				{
					"hidden": false,
					"id": "autodate2990389176",
					"name": "created",
					"onCreate": true,
					"onUpdate": false,
					"presentable": false,
					"system": false,
					"type": "autodate"
				}
			],
			"id": "pbc_3617126873",
			"indexes": [
				"CREATE UNIQUE INDEX ` + "`idx_scans_one_valid`" + ` ON ` + "`scans`" + ` (` + "`ticket`" + `) WHERE ` + "`outcome`" + ` = 'valid' AND ` + "`ticket`" + ` != ''",
				"CREATE INDEX ` + "`idx_scans_event_created`" + ` ON ` + "`scans`" + ` (` + "`event`" + `, ` + "`created`" + `)",
				"CREATE INDEX ` + "`idx_scans_ticket`" + ` ON ` + "`scans`" + ` (` + "`ticket`" + `)"
			],
			"listRule": null,
			"name": "scans",
			"system": false,
			"type": "base",
			"updateRule": null,
			"viewRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_3617126873")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
